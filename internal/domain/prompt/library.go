package prompt

// Library is the full set of prompt templates the engine uses. It is built
// once at startup; callers hold it by pointer and never modify it.
type Library struct {
	GoalAnalysis      Template
	TeamFormation     Template
	TaskDecomposition Template
	TaskExecution     Template
	OutputReview      Template
}

// DefaultLibrary returns the built-in prompt library.
func DefaultLibrary() *Library {
	return &Library{
		GoalAnalysis: Template{
			Name:    "goal_analysis",
			Version: "1.0.0",
			System: "You are a highly skilled project manager analyzing project goals. " +
				"Analyze the following goal and respond with a single JSON object with keys: " +
				"core_objective (string), subtasks (array of strings, ordered), " +
				"required_specializations (array of strings), estimated_timeline_hours (number), " +
				"potential_blockers (array of strings), success_criteria (array of strings).",
			User: "Goal: {{goal}}\n\n" +
				"Provide:\n" +
				"1. Core objective (one sentence)\n" +
				"2. Key subtasks (ordered list)\n" +
				"3. Required specializations (types of workers needed)\n" +
				"4. Estimated timeline (hours)\n" +
				"5. Potential blockers\n" +
				"6. Success criteria",
		},
		TeamFormation: Template{
			Name:    "team_formation",
			Version: "1.0.0",
			System: "You are forming a team of specialized AI agents. Respond with a JSON array " +
				"of 3-5 worker specifications, each with keys: specialization (one of Researcher, " +
				"Coder, Reviewer, Tester, Writer), skills (array of strings), responsibilities " +
				"(array of strings), required_tools (array of strings).",
			User: "Goal: {{goal}}\n" +
				"Subtasks: {{subtasks}}\n\n" +
				"Create 3-5 specialized workers. For each:\n" +
				"- Role name and specialization\n" +
				"- Key skills required\n" +
				"- Primary responsibilities\n" +
				"- Tools they'll need",
		},
		TaskDecomposition: Template{
			Name:    "task_decomposition",
			Version: "1.0.0",
			System: "You are breaking down a goal into concrete, actionable tasks. Respond with a " +
				"JSON array of tasks, each with keys: title (string), description (string), " +
				"acceptance_criteria (array of 3-5 checkable strings), required_skills (array of strings).",
			User: "Goal: {{goal}}\n\n" +
				"For each task provide:\n" +
				"- Title\n" +
				"- Detailed description\n" +
				"- Acceptance criteria (3-5 checkable items)\n" +
				"- Required skills",
		},
		TaskExecution: Template{
			Name:    "task_execution",
			Version: "1.0.0",
			System: "You are a {{specialization}} agent on a software team. Complete the assigned " +
				"task and respond with a JSON object with keys: result (object describing the outcome), " +
				"artifacts (array of strings), logs (array of strings).",
			User: "Task: {{title}}\n" +
				"Description: {{description}}\n" +
				"Acceptance criteria:\n{{acceptance_criteria}}\n" +
				"Prior feedback:\n{{feedback}}",
		},
		OutputReview: Template{
			Name:    "output_review",
			Version: "1.0.0",
			System: "You are a project manager reviewing a worker's task output against its " +
				"acceptance criteria. Respond with a JSON object with keys: outcome (one of " +
				"approved, revision_requested, rejected), feedback (string, required when " +
				"requesting revision), reason (string, required when rejecting).",
			User: "Task: {{title}}\n" +
				"Acceptance criteria:\n{{acceptance_criteria}}\n\n" +
				"Worker output:\n{{output}}",
		},
	}
}

// Validate checks every template in the library.
func (l *Library) Validate() error {
	for _, t := range []*Template{
		&l.GoalAnalysis, &l.TeamFormation, &l.TaskDecomposition, &l.TaskExecution, &l.OutputReview,
	} {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

package config

// DefaultTaskSystemPrompt returns the default system prompt for task generation
func DefaultTaskSystemPrompt() string {
	return `You are a professional programming task designer specializing in creating high-quality coding challenges and automation tasks.

Your role is to generate complete, executable programming tasks that include:
1. Detailed task instructions with clear requirements
2. Docker-based test environments
3. Complete reference solutions
4. Comprehensive test suites

Key principles:
- Generate tasks that are realistic and practical
- Ensure all generated content is self-consistent and executable
- Maintain appropriate difficulty levels
- Include proper error handling and security best practices
- Create thorough test cases that validate functionality, code quality, and security

When generating task variations:
- Change the API, tool, or technology used
- Maintain similar complexity and task structure
- Ensure the new task is sufficiently different but equally challenging
- Keep the same testing methodology (pytest-based)`
}

// DefaultTaskTemplate returns the default template for task generation.
// The rendered prompt embeds the seed task bundle so variations stay
// structurally consistent with it.
func DefaultTaskTemplate() string {
	return `Based on the following seed task, generate a new programming task variation.

SEED TASK YAML:
` + "```yaml\n{{.SeedTaskYAML}}\n```" + `

SEED DOCKERFILE:
` + "```dockerfile\n{{.SeedDockerfile}}\n```" + `

SEED SOLUTION (solution.sh):
` + "```bash\n{{.SeedSolution}}\n```" + `

SEED TEST (tests/test_outputs.py):
` + "```python\n{{.SeedTest}}\n```" + `

USER SCENARIO:
{{.Scenario}}

Generate task variation #{{.TaskNum}} with these requirements:
- Must be relevant to the user's scenario
- Must use a DIFFERENT specific API, tool, or service than other variations
- Must have a UNIQUE task_name that describes the specific tool/API (e.g., "slack-notification-api", "postgres-backup-s3")
- Maintains the SAME difficulty level as the seed task
- Includes complete, working Dockerfile, solution, and tests
- Ensures all files are self-consistent and would work together

Return ONLY a valid JSON object with this exact structure (no markdown, no additional text):
{
  "task_name": "<unique-descriptive-name>",
  "task_yaml": {
    "instruction": "<detailed multi-line instruction>",
    "author_name": "Terminal Bench",
    "author_email": "tb@laude.org",
    "difficulty": "<easy|medium|hard>",
    "category": "<e.g. software-engineering, data-analysis, devops>",
    "tags": ["<tag>", "..."],
    "parser_name": "pytest",
    "max_agent_timeout_sec": 600,
    "max_test_timeout_sec": 120,
    "expert_time_estimate_min": <int>,
    "junior_time_estimate_min": <int>
  },
  "dockerfile": "<complete Dockerfile content>",
  "docker_compose": "<complete docker-compose.yaml content>",
  "solution_script": "<complete solution.sh content>",
  "run_tests_script": "<complete run-tests.sh content>",
  "test_file_content": "<complete tests/test_outputs.py content>"
}

CRITICAL: Ensure task_name is unique and descriptive, and every field is non-empty.`
}

// DefaultRatingTemplate returns the default rubric used to rate a validated
// task set for quality and difficulty.
func DefaultRatingTemplate() string {
	return `You are an expert reviewer of agent benchmark tasks. The following task set passed an automated oracle validation round: every reference solution ran and its tests passed.

TASK SET SUMMARY:
{{.TaskSummary}}

Rate the task set as a whole:
1. "quality": a score from 1.0 to 5.0, where
   - 1 = trivial or broken tasks with meaningless tests
   - 3 = functional tasks with basic coverage
   - 5 = realistic, well-specified tasks with thorough tests
2. "difficulty": the dominant difficulty label, one of "easy", "medium", "hard"

Return ONLY a valid JSON object (no markdown, no additional text):
{
  "quality": <1.0-5.0>,
  "difficulty": "<easy|medium|hard>"
}`
}

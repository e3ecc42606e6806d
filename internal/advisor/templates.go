package advisor

// Function templates proposed for the improvements file. Each is a standalone
// declaration with no imports so it parses and compiles on its own.

const responseGuidanceFunc = `// ResponseGuidance suggests an answer style for an uncertain reply.
func ResponseGuidance(intent string) (style string, confidenceBoost float64) {
	switch intent {
	case "question":
		return "detailed_answer", 0.2
	case "command":
		return "command_execution", 0.15
	}
	return "general", 0.1
}`

const expansionPolicyFunc = `// ExpansionPolicy bounds active learning for topics the knowledge base missed.
func ExpansionPolicy() (maxTopicsPerRun int, minConfidence float64) {
	return 5, 0.8
}`

const interactionHintFunc = `// InteractionHint suggests a follow-up for short messages.
func InteractionHint(length int) string {
	if length < 10 {
		return "ask_follow_up"
	}
	return "continue"
}`

const performanceBudgetFunc = `// PerformanceBudget is the response time target in seconds and the cache size to aim for.
func PerformanceBudget() (targetSeconds float64, cacheEntries int) {
	return 1.5, 1000
}`

const accuracyPolicyFunc = `// AccuracyPolicy raises the bar for storing unverified claims.
func AccuracyPolicy() (validationThreshold, confidenceBoost float64) {
	return 0.9, 0.1
}`

const experiencePolicyFunc = `// ExperiencePolicy lists the traits replies should show.
func ExperiencePolicy() []string {
	return []string{"friendly", "helpful", "patient"}
}`

const errorBudgetFunc = `// ErrorBudget is the share of failed interactions tolerated before backing off.
func ErrorBudget() float64 {
	return 0.05
}`

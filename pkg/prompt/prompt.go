package prompt

import (
	"fmt"
	"strings"

	"github.com/xpzouying/starpath/pkg/analysis"
	"github.com/xpzouying/starpath/pkg/steps"
)

const (
	DefaultFramework  = "Next.js (App Router)"
	DefaultTestRunner = "Playwright"
)

// Input 生成提示词所需的数据
type Input struct {
	Framework  string
	TestRunner string
	Steps      []steps.Step
	Context    *analysis.Result
}

// Render 生成测试编写提示词。没有内容的上下文小节整段省略。
func Render(in Input) string {
	if in.Framework == "" {
		in.Framework = DefaultFramework
	}
	if in.TestRunner == "" {
		in.TestRunner = DefaultTestRunner
	}

	var edgeCases, issues []string
	if in.Context != nil {
		edgeCases = in.Context.EdgeCases
		issues = in.Context.PotentialIssues
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a senior QA engineer specializing in end-to-end testing with %s.\n\n", in.TestRunner)

	// 类型和描述都为空时整段省略，空字段不输出
	if in.Context != nil && (in.Context.ApplicationContext.Type != "" || in.Context.ApplicationContext.Description != "") {
		app := in.Context.ApplicationContext
		b.WriteString("Application Context:\n")
		if app.Type != "" {
			fmt.Fprintf(&b, "- Type: %s\n", app.Type)
		}
		if app.Framework != "" {
			fmt.Fprintf(&b, "- Framework: %s\n", app.Framework)
		}
		if app.Description != "" {
			fmt.Fprintf(&b, "- Description: %s\n", app.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Framework: %s\n", in.Framework)
	fmt.Fprintf(&b, "- Test runner: %s\n", in.TestRunner)
	b.WriteString("- The following flow was recorded from a video demonstration\n\n")

	b.WriteString("Observed User Flow (Happy Path):\n")
	for i, s := range in.Steps {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, strings.ToUpper(s.Kind.String()), s.Value)
	}

	writeList(&b, "Identified Edge Cases to Test:", edgeCases)
	writeList(&b, "Potential Issues & Failure Scenarios:", issues)

	fmt.Fprintf(&b, `
Your Tasks:

1. **Happy Path Test**
   - Generate a comprehensive %[1]s test that exactly replicates the observed user flow
   - Use descriptive test names that clearly explain what is being tested
   - Add assertions at each critical step to verify expected outcomes
   - Include proper waits and state checks

2. **Edge Case Tests**
   - Form validation errors (empty fields, invalid formats, etc.)
   - Boundary conditions (min/max values, character limits)
   - Empty states and zero-data scenarios
   - Rapid user interactions (double-clicks, quick navigation)
`, in.TestRunner)
	if len(edgeCases) > 0 {
		b.WriteString("   - Address the identified edge cases listed above\n")
	}

	b.WriteString(`
3. **Failure Scenario Tests**
   - Network errors and timeouts
   - API failures (500 errors, 404s, etc.)
   - Session expiration
   - Concurrent user actions
`)
	if len(issues) > 0 {
		b.WriteString("   - Address the potential issues listed above\n")
	}

	fmt.Fprintf(&b, `
4. **Accessibility Tests** (if applicable)
   - Keyboard navigation (Tab, Enter, Escape)
   - Screen reader compatibility (proper ARIA labels)
   - Focus management
   - Color contrast and visual accessibility

%[1]s Best Practices to Follow:

**Selector Strategy:**
- Prefer role-based selectors: `+"`page.getByRole('button', { name: 'Submit' })`"+`
- Use data-testid for dynamic content: `+"`page.getByTestId('user-profile')`"+`
- Avoid brittle CSS selectors and XPath when possible
- Use text content selectors for stable elements: `+"`page.getByText('Welcome')`"+`

**Page Object Model:**
- Consider creating page objects for complex flows
- Encapsulate selectors and actions in reusable methods
- Keep tests DRY

**Test Data Management:**
- Use fixtures for test data
- Clean up test data after each test
- Avoid hardcoding sensitive information

**Assertions:**
- Use specific assertions: `+"`expect(element).toBeVisible()`"+` instead of `+"`expect(element).toBeTruthy()`"+`
- Add meaningful assertion messages
- Test both positive and negative cases

**Error Handling:**
- Use proper timeouts and retries
- Handle async operations correctly
- Add error screenshots on failure

**Test Organization:**
- Group related tests using `+"`test.describe()`"+`
- Use `+"`beforeEach`"+` and `+"`afterEach`"+` for setup/teardown
- Keep tests independent and isolated

Output Requirements:
- A complete, production-ready %[1]s test file
- Well-organized with clear test.describe blocks for each scenario type
- Comprehensive comments explaining assumptions and complex logic
- Ready to copy-paste and run with minimal modifications
- Include necessary imports and setup code

Generate the complete test file now.`, in.TestRunner)

	return strings.TrimSpace(b.String())
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", title)
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
}

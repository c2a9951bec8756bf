package router

import (
	"strings"

	"github.com/MrWong99/aemassist/internal/mcp"
)

// classifierInstructions follows the tool catalog in the system prompt.
const classifierInstructions = `IMPORTANT: The calculator tool requires "expression" as a STRING containing the math expression.
Example: {"expression": "5 + 3"} NOT {"operation": "add", "operands": [5, 3]}

CRITICAL FOR AEM TOOLS:
- ANY request to list, create, get, delete, or manage AEM content/sites/assets = should_execute: true
- Questions phrased as "can you...", "please...", "show me..." about AEM sites/content are ACTIONS, not knowledge questions
- "What is AEM?" or "How does AEM work?" = should_execute: false (conceptual/knowledge questions)
- "List sites", "Show sites", "Can you list sites", "Get sites" = should_execute: true (action requests)

CRITICAL: You MUST extract ALL required parameters from the user's message. If a required parameter is missing, you should still include it with a reasonable default or ask for clarification.

Required parameters for AEM tools:
- aem-create-microsite: REQUIRES "siteTitle" (string) - extract the site name/title from user message
- aem-list-sites: {"path": "/content"} (default)
- aem-get-site-info: REQUIRES "sitePath" (string) - format as "/content/<sitename>"
- aem-delete-site: REQUIRES "sitePath" (string)
- aem-create-component: REQUIRES "componentName" (string)
- aem-create-content-fragment: REQUIRES "fragmentName" (string)
- aem-upload-asset: REQUIRES "filePath" (string) and "destinationPath" (string)

Given a user message, determine:
1. Does the user want to execute one of these tools? (yes/no)
2. Which tool should be executed?
3. What are the arguments? EXTRACT ALL REQUIRED PARAMETERS from the user's message.

Respond ONLY with a JSON object in this format:
{
    "should_execute": true/false,
    "tool_name": "tool-name" or null,
    "arguments": {},
    "reasoning": "why this tool was chosen"
}

Examples:
User: "Echo hello world"
{
    "should_execute": true,
    "tool_name": "echo",
    "arguments": {"message": "hello world"},
    "reasoning": "User wants to echo a message"
}

User: "Calculate 5 + 3" or "What is 5 plus 3"
{
    "should_execute": true,
    "tool_name": "calculator",
    "arguments": {"expression": "5 + 3"},
    "reasoning": "User wants to calculate a math expression"
}

User: "What is AEM?"
{
    "should_execute": false,
    "tool_name": null,
    "arguments": {},
    "reasoning": "This is a knowledge question, not a tool execution request"
}

User: "List my AEM sites" or "Can you list my AEM sites" or "Show me my sites"
{
    "should_execute": true,
    "tool_name": "aem-list-sites",
    "arguments": {"path": "/content"},
    "reasoning": "User wants to list AEM sites - this is an action request, not a knowledge question"
}

User: "Get info for diomicrosite"
{
    "should_execute": true,
    "tool_name": "aem-get-site-info",
    "arguments": {"sitePath": "/content/diomicrosite"},
    "reasoning": "User wants to get information about a specific site"
}

User: "Create a microsite called Product Launch" or "Create microsite Product Launch" or "Create a new microsite named Product Launch"
{
    "should_execute": true,
    "tool_name": "aem-create-microsite",
    "arguments": {"siteTitle": "Product Launch"},
    "reasoning": "User wants to create a microsite - extracted siteTitle from message"
}
`

// classifierPrompt renders the system prompt for catalog.
func classifierPrompt(catalog []mcp.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString("You are an assistant that determines if a user wants to execute an MCP tool.\n\n")
	b.WriteString("Available MCP tools:\n")
	for _, t := range catalog {
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Description)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(classifierInstructions)
	return b.String()
}

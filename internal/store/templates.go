package store

import "fmt"

var codeTemplates = map[string]string{
	"python":     "# Write your Python code here\n\n",
	"javascript": "// Write your JavaScript code here\n\n",
	"typescript": "// Write your TypeScript code here\n\n",
	"java":       "// Write your Java code here\n\npublic class Main {\n    public static void main(String[] args) {\n        \n    }\n}\n",
	"cpp":        "// Write your C++ code here\n\n#include <iostream>\n\nint main() {\n    \n    return 0;\n}\n",
	"go":         "// Write your Go code here\n\npackage main\n\nimport \"fmt\"\n\nfunc main() {\n    \n}\n",
}

// DefaultCode returns the starter code template for a language.
func DefaultCode(language string) string {
	if tmpl, ok := codeTemplates[language]; ok {
		return tmpl
	}
	return fmt.Sprintf("// Write your %s code here\n\n", language)
}

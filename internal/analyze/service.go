package analyze

import (
	"fmt"
	"strings"
)

// ProjectResourceName accepts a bare project id or a projects/<id> resource
// name and returns the resource name.
func ProjectResourceName(project string) (string, error) {
	project = strings.TrimSpace(project)
	if strings.HasPrefix(project, "projects/") {
		parts := strings.Split(project, "/")
		if len(parts) != 2 || parts[1] == "" {
			return "", fmt.Errorf("invalid project resource name %q", project)
		}
		return project, nil
	}
	if project == "" || strings.Contains(project, "/") {
		return "", fmt.Errorf("invalid project id %q", project)
	}
	return fmt.Sprintf("projects/%s", project), nil
}

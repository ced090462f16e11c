package approval

import (
	"strings"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// Validate returns the approval gate failures for req: an empty evidence
// summary, a rollback without steps and no actions to execute. An empty
// result means approvable.
func Validate(req *contracts.ApprovalRequest) []string {
	var missing []string
	if req.Evidence == nil || strings.TrimSpace(req.Evidence.Summary) == "" {
		missing = append(missing, MsgEvidenceRequired)
	}
	if req.Rollback == nil || len(req.Rollback.Steps) == 0 {
		missing = append(missing, MsgRollbackRequired)
	}
	if len(req.Actions) == 0 {
		missing = append(missing, MsgActionsRequired)
	}
	return missing
}

package webhook

// wellKnown is the fixed allow-list of (event, action) combinations that
// are advanced to the durable path. An empty action set means the event
// carries no action field. Everything else is still acknowledged so the
// platform does not retry delivery, but only the local history records it.
var wellKnown = map[string]map[string]struct{}{
	"check_suite":                {"completed": {}},
	"deployment_protection_rule": {"requested": {}},
	"deployment_status":          {"created": {}},
	"installation":               {"created": {}, "deleted": {}},
	"installation_repositories":  {"added": {}, "removed": {}},
	"issue_comment":              {"created": {}},
	"pull_request":               {"opened": {}, "labeled": {}},
	"push":                       {},
	"repository_dispatch":        {"deployment_started": {}, "deployment_completed": {}},
}

// IsWellKnown reports whether the (event, action) pair is in the fixed
// allow-list of combinations the pipeline acts on.
func IsWellKnown(event, action string) bool {
	actions, ok := wellKnown[event]
	if !ok {
		return false
	}
	if len(actions) == 0 {
		return action == ""
	}
	_, ok = actions[action]
	return ok
}

package permissions

func init() {
	perms := []*Permission{
		{
			Code:        "user.view",
			Module:      "membership",
			Description: "View member profiles",
			Enabled:     true,
		},
		{
			Code:        "user.edit",
			Module:      "membership",
			Description: "Edit member profiles",
			Enabled:     true,
		},
		{
			Code:        "user.manage",
			Module:      "membership",
			Description: "Create, disable, and delete member accounts",
			Enabled:     true,
		},
		{
			Code:        "session.view",
			Module:      "auth",
			Description: "View active sessions",
			Enabled:     true,
		},
		{
			Code:        "session.revoke",
			Module:      "auth",
			Description: "Revoke other users' sessions",
			Enabled:     true,
		},
		{
			Code:        "chat.invoke",
			Module:      "chat",
			Description: "Invoke the assistant chat endpoint",
			Enabled:     true,
		},
		{
			Code:        "chat.history",
			Module:      "chat",
			Description: "Read chat conversation history",
			Enabled:     true,
		},
		{
			Code:        "map.route",
			Module:      "chat",
			Description: "Request route planning through the mapping adapter",
			Enabled:     true,
		},
		{
			Code:        "metrics.view",
			Module:      "ops",
			Description: "Read service metrics and health detail",
			Enabled:     true,
		},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}

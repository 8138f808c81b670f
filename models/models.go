package models

// All lists the persisted models in dependency order for AutoMigrate
func All() []any {
	return []any{
		&Client{},
		&Rule{},
		&RuleTarget{},
		&Campaign{},
		&Reminder{},
		&SweepRun{},
		&Conversation{},
		&ConversationMessage{},
		&ChatbotSettings{},
	}
}

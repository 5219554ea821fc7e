package models

// All lists every persisted model. Used by the sqlite schema bootstrap, which
// cannot run the postgres goose migrations.
func All() []any {
	return []any{
		&Project{},
		&CostLine{},
		&ProductionCard{},
		&MaterialRequisition{},
		&MaterialLine{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

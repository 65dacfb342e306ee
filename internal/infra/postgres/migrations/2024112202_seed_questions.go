package migrations

import (
	"context"
	"encoding/json"
	"fmt"

	"carbon-quiz/internal/catalog"
	"github.com/uptrace/bun"
)

// QuestionRow is one stored question of a bank.
type QuestionRow struct {
	bun.BaseModel `bun:"table:questions"`

	BankID   string          `bun:"bank_id,pk"`
	ID       string          `bun:"id,pk"`
	Position int             `bun:"position,notnull"`
	Data     json.RawMessage `bun:"data,type:jsonb,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			rows, err := bankRows(catalog.DefaultBankID, catalog.Default())
			if err != nil {
				return err
			}
			_, err = db.NewInsert().Model(&rows).On("CONFLICT (bank_id, id) DO UPDATE").
				Set("position = EXCLUDED.position").
				Set("data = EXCLUDED.data").
				Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDelete().Model((*QuestionRow)(nil)).
				Where("bank_id = ?", catalog.DefaultBankID).
				Exec(ctx)
			return err
		},
	)
}

func bankRows(bankID string, bank catalog.Bank) ([]QuestionRow, error) {
	rows := make([]QuestionRow, 0, len(bank.Questions))
	for i, q := range bank.Questions {
		data, err := json.Marshal(q)
		if err != nil {
			return nil, fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		rows = append(rows, QuestionRow{BankID: bankID, ID: string(q.ID), Position: i, Data: data})
	}
	return rows, nil
}

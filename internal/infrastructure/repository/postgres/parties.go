package postgres

import (
	"context"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

func (s *Store) FindPartiesByName(ctx context.Context, role domain.PartyRole, name string) ([]domain.Party, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, role, name, document_id, address, city, state_code, postal_code
FROM parties
WHERE role = $1 AND name = $2
ORDER BY id
`, string(role), name)
	if err != nil {
		return nil, wrapDBError("find parties by name", err)
	}
	defer rows.Close()

	var out []domain.Party
	for rows.Next() {
		var p domain.Party
		var roleRaw string
		if err := rows.Scan(&p.ID, &roleRaw, &p.Name, &p.DocumentID, &p.Address, &p.City, &p.StateCode, &p.PostalCode); err != nil {
			return nil, wrapDBError("scan party", err)
		}
		p.Role = domain.PartyRole(roleRaw)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate parties", err)
	}
	return out, nil
}

func (s *Store) InsertParty(ctx context.Context, p *domain.Party) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
INSERT INTO parties (role, name, document_id, address, city, state_code, postal_code)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id
`, string(p.Role), p.Name, p.DocumentID, p.Address, p.City, p.StateCode, p.PostalCode).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert party", err)
	}
	p.ID = id
	return id, nil
}

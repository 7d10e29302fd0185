package orders

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/emails"
)

const (
	querySearchAdmin  = "LOWER(order_code) LIKE ? ESCAPE '\\' OR LOWER(client_email) LIKE ? ESCAPE '\\'"
	querySearchClient = "LOWER(order_code) LIKE ? ESCAPE '\\'"
	orderSearchHits   = "updated_at DESC, id DESC"
)

// Search runs a case-insensitive substring query. Admins match order codes and client
// emails; clients match order codes among the orders they own and never see emails.
// An empty query returns no results without touching the store.
func (s *Service) Search(ctx context.Context, caller auth.Identity, query string) ([]SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []SearchResult{}, nil
	}
	if !caller.Authenticated() {
		return nil, forbidden(opSearch)
	}
	if err := s.ready(opSearch); err != nil {
		return nil, err
	}

	pattern := likePattern(needle)
	db := s.db.WithContext(ctx).Model(&Order{})
	if caller.IsAdmin {
		db = db.Where(querySearchAdmin, pattern, pattern)
	} else {
		email := strings.ToLower(strings.TrimSpace(caller.Email))
		if email == "" {
			return nil, forbidden(opSearch)
		}
		db = db.Where(querySearchClient, pattern).Where(queryOwnedByEmail, likePattern(","+email+","))
	}

	var rows []Order
	if err := db.Order(orderSearchHits).Limit(s.searchLimit).Find(&rows).Error; err != nil {
		return nil, s.storeFailure(opSearch, reasonQueryFailed, err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		hit := SearchResult{
			ID:        row.ID,
			OrderCode: row.OrderCode,
			StyleName: row.StyleName,
			Quantity:  row.Quantity,
			UpdatedAt: row.UpdatedAt,
		}
		if caller.IsAdmin {
			hit.ClientEmail = row.ClientEmail
		} else if !emails.Owns(row.ClientEmail, caller.Email) {
			continue
		}
		results = append(results, hit)
	}
	return results, nil
}

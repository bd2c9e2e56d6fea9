// Package audience turns a campaign's audience descriptor into a recipient
// filter the users repository can page over.
package audience

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsocio/campaign-service/internal/model"
	"github.com/lib/pq"
)

// ErrNoRecipients signals a manual campaign with an empty id list. The
// dispatch loop treats it as a clean no-op, not a failure.
var ErrNoRecipients = errors.New("audience resolves to no recipients")

// Filter is the resolved recipient predicate. A zero Filter matches all users.
type Filter struct {
	// IDs is the explicit recipient list of a manual campaign. Nil means the
	// campaign is not manual; manual campaigns always have at least one id
	// here (Resolve rejects empty lists).
	IDs []int64

	Role            string
	OAuthProvider   string
	IsPhoneVerified *bool
	Gender          string
	JoinedAfter     *time.Time
	JoinedBefore    *time.Time
}

// Resolve maps the campaign's audience tag plus its filters/target ids onto a
// Filter. Segmented campaigns with a nil filters blob degrade to all-users;
// malformed filter values are not validated here and fail in the query layer.
func Resolve(c *model.Campaign) (Filter, error) {
	switch c.Audience {
	case model.AudienceManual:
		if len(c.TargetUserIDs) == 0 {
			return Filter{}, ErrNoRecipients
		}
		return Filter{IDs: []int64(c.TargetUserIDs)}, nil

	case model.AudienceSegmented:
		if c.Filters == nil {
			return Filter{}, nil
		}
		return Filter{
			Role:            c.Filters.Role,
			OAuthProvider:   c.Filters.OAuthProvider,
			IsPhoneVerified: c.Filters.IsPhoneVerified,
			Gender:          c.Filters.Gender,
			JoinedAfter:     c.Filters.JoinedAfter,
			JoinedBefore:    c.Filters.JoinedBefore,
		}, nil

	case model.AudienceAll:
		return Filter{}, nil

	default:
		return Filter{}, fmt.Errorf("unknown audience %q", c.Audience)
	}
}

// WhereClause renders the filter as an AND-joined SQL fragment with
// positional placeholders starting at argPos. Returns an empty clause for the
// match-all filter. Absent fields impose no constraint.
func (f Filter) WhereClause(argPos int) (string, []any) {
	var conds []string
	var args []any

	next := func() int {
		p := argPos
		argPos++
		return p
	}

	if f.IDs != nil {
		conds = append(conds, fmt.Sprintf("id = ANY($%d)", next()))
		args = append(args, pq.Array(f.IDs))
	}
	if f.Role != "" {
		conds = append(conds, fmt.Sprintf("role = $%d", next()))
		args = append(args, f.Role)
	}
	if f.OAuthProvider != "" {
		conds = append(conds, fmt.Sprintf("oauth_provider = $%d", next()))
		args = append(args, f.OAuthProvider)
	}
	if f.IsPhoneVerified != nil {
		conds = append(conds, fmt.Sprintf("is_phone_verified = $%d", next()))
		args = append(args, *f.IsPhoneVerified)
	}
	if f.Gender != "" {
		conds = append(conds, fmt.Sprintf("gender = $%d", next()))
		args = append(args, f.Gender)
	}
	if f.JoinedAfter != nil {
		conds = append(conds, fmt.Sprintf("created_at >= $%d", next()))
		args = append(args, *f.JoinedAfter)
	}
	if f.JoinedBefore != nil {
		conds = append(conds, fmt.Sprintf("created_at <= $%d", next()))
		args = append(args, *f.JoinedBefore)
	}

	return strings.Join(conds, " AND "), args
}

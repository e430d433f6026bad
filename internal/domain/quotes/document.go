package quotes

import (
	"fmt"
	"strconv"

	"github.com/okian/pinnacle/internal/domain/model"
)

// InitialFilename names the version 1 artifact.
func InitialFilename(contactID, quoteID string) string {
	return fmt.Sprintf("quote_%s_%s.pdf", contactID, quoteID)
}

// RevisionFilename names the artifact of a revision (version >= 2).
func RevisionFilename(contactID, quoteID string, version int) string {
	return fmt.Sprintf("quote_%s_%s_v%d.pdf", contactID, quoteID, version)
}

// BuildDocument lays out q: a title naming the contact (and the version for
// revisions), then one "<name>: <currency><price>" line per item in order.
// Prices are rounded half away from zero to two places.
func BuildDocument(q model.Quote, currency string) model.Document {
	title := "Quote for Contact " + q.ContactID
	if q.Version > 1 {
		title += " (v" + strconv.Itoa(q.Version) + ")"
	}
	lines := make([]string, len(q.Items))
	for i, it := range q.Items {
		lines[i] = it.Name + ": " + currency + it.Price.StringFixed(2)
	}
	return model.Document{Filename: q.Filename, Title: title, Lines: lines}
}

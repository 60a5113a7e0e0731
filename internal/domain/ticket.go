package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TicketNumbers derives one ticket number per seat from the booking id and
// a sequence index. The booking id is globally unique, so the numbers are
// too, and re-deriving them for the same booking is stable.
func TicketNumbers(bookingID uuid.UUID, qty uint32) []string {
	compact := strings.ToUpper(strings.ReplaceAll(bookingID.String(), "-", ""))
	tickets := make([]string, qty)
	for i := range tickets {
		tickets[i] = fmt.Sprintf("TKT-%s-%03d", compact, i+1)
	}
	return tickets
}

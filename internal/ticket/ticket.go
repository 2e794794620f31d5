// Package ticket renders e-tickets for bookings.
package ticket

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirinyoku/busline/internal/domain"
	"github.com/phpdave11/gofpdf"
)

// Render builds a one-page PDF e-ticket and a filename for it.
func Render(b domain.Booking, bus domain.Bus, route domain.Route) ([]byte, string, error) {
	const op = "ticket.Render"

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+b.ID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Booking      : %s", b.ID),
		fmt.Sprintf("Bus          : %s (%s)", safe(bus.Name, "-"), bus.ID),
		fmt.Sprintf("Journey      : %s -> %s", b.Source, b.Destination),
		fmt.Sprintf("Date         : %s", b.Date),
		fmt.Sprintf("Departure    : %s", safe(bus.DepartureTime, "-")),
		fmt.Sprintf("Arrival      : %s", safe(bus.ArrivalTime, "-")),
		fmt.Sprintf("Seats        : %s", joinSeats(b.Seats)),
		fmt.Sprintf("Total fare   : %.2f", b.TotalFare),
		fmt.Sprintf("Booked at    : %s", b.BookingTime.Format("2006-01-02 15:04")),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}

	if len(route.Stops) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 7, "Route "+route.ID)
		pdf.Ln(8)

		pdf.SetFont("Helvetica", "", 11)
		stops := make([]string, len(route.Stops))
		for i, c := range route.Stops {
			stops[i] = string(c)
		}
		pdf.MultiCell(0, 6, strings.Join(stops, " -> "), "", "", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please show this ticket when boarding. Refunds depend on how long before departure you cancel.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("%s:%w", op, err)
	}

	return buf.Bytes(), "ETICKET_" + safeFilenamePart(b.ID) + ".pdf", nil
}

func joinSeats(seats []int) string {
	parts := make([]string, len(seats))
	for i, n := range seats {
		parts[i] = strconv.Itoa(n)
	}
	return safe(strings.Join(parts, ", "), "-")
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func safeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

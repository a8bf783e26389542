// Package cli implements the interactive terminal menu that drives the
// client's reliability engine. This translation from menu choices into
// protocol calls is the contractual part of the client surface (§6); the
// menu itself is an out-of-scope collaborator.
package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Iyzyman/facilitybook/internal/protocol"
	"github.com/Iyzyman/facilitybook/internal/rpcclient"
	"github.com/manifoldco/promptui"
)

// ErrExit names the user's choice to exit. Run does not return it: choosing
// Exit makes Run return nil.
var ErrExit = errors.New("exit requested")

const (
	itemQuery   = "Query facility availability"
	itemBook    = "Book a facility"
	itemChange  = "Change an existing booking"
	itemMonitor = "Monitor facility availability"
	itemExtend  = "Extend a booking"
	itemCancel  = "Cancel a booking"
	itemExit    = "Exit"
)

// Menu drives one interactive session against a connected Client.
type Menu struct {
	client *rpcclient.Client
}

// New builds a menu bound to client.
func New(client *rpcclient.Client) *Menu {
	return &Menu{client: client}
}

// Run presents the menu repeatedly until the user exits or an
// unrecoverable input error occurs.
func (m *Menu) Run() error {
	for {
		prompt := promptui.Select{
			Label: "Facility Booking System — choose an operation",
			Items: []string{itemQuery, itemBook, itemChange, itemMonitor, itemExtend, itemCancel, itemExit},
		}
		_, choice, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
				return nil
			}
			return fmt.Errorf("menu selection: %w", err)
		}

		var opErr error
		switch choice {
		case itemQuery:
			opErr = m.doQuery()
		case itemBook:
			opErr = m.doBook()
		case itemChange:
			opErr = m.doChange()
		case itemMonitor:
			opErr = m.doMonitor()
		case itemExtend:
			opErr = m.doExtend()
		case itemCancel:
			opErr = m.doCancel()
		case itemExit:
			return nil
		}
		if opErr != nil {
			fmt.Printf("Error: %v\n", opErr)
		}
	}
}

func promptString(label string) (string, error) {
	p := promptui.Prompt{Label: label}
	return p.Run()
}

func promptUint(label string, max int) (uint64, error) {
	p := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			v, err := strconv.Atoi(input)
			if err != nil {
				return fmt.Errorf("must be a number")
			}
			if v < 0 || (max > 0 && v > max) {
				return fmt.Errorf("must be between 0 and %d", max)
			}
			return nil
		},
	}
	s, err := p.Run()
	if err != nil {
		return 0, err
	}
	v, _ := strconv.ParseUint(s, 10, 32)
	return v, nil
}

func promptTimeTriple(label string) (protocol.TimeTriple, error) {
	day, err := promptUint(label+" day (0=Mon..6=Sun)", 6)
	if err != nil {
		return protocol.TimeTriple{}, err
	}
	hour, err := promptUint(label+" hour (0-23)", 23)
	if err != nil {
		return protocol.TimeTriple{}, err
	}
	minute, err := promptUint(label+" minute (0-59)", 59)
	if err != nil {
		return protocol.TimeTriple{}, err
	}
	return protocol.TimeTriple{Day: uint8(day), Hour: uint8(hour), Minute: uint8(minute)}, nil
}

func (m *Menu) doQuery() error {
	facility, err := promptString("Facility name")
	if err != nil {
		return err
	}
	numDays, err := promptUint("Number of days to check", 7)
	if err != nil {
		return err
	}
	days := make([]uint8, 0, numDays)
	for i := 0; i < int(numDays); i++ {
		d, err := promptUint(fmt.Sprintf("Day %d index (0=Mon..6=Sun)", i+1), 6)
		if err != nil {
			return err
		}
		days = append(days, uint8(d))
	}

	reply, err := m.client.Call(protocol.QueryRequest{Facility: facility, Days: days})
	if err != nil {
		return err
	}
	queryReply := reply.(protocol.QueryReply)
	if len(queryReply.Free) == 0 {
		fmt.Println("Fully booked.")
		return nil
	}
	fmt.Println("Free intervals:")
	for _, iv := range queryReply.Free {
		fmt.Printf("  day %d %02d:%02d - day %d %02d:%02d\n",
			iv.Start.Day, iv.Start.Hour, iv.Start.Minute,
			iv.End.Day, iv.End.Hour, iv.End.Minute)
	}
	return nil
}

func (m *Menu) doBook() error {
	facility, err := promptString("Facility name")
	if err != nil {
		return err
	}
	start, err := promptTimeTriple("Start")
	if err != nil {
		return err
	}
	end, err := promptTimeTriple("End")
	if err != nil {
		return err
	}
	reply, err := m.client.Call(protocol.BookRequest{Facility: facility, Start: start, End: end})
	if err != nil {
		return err
	}
	fmt.Printf("Booked. Confirmation ID: %s\n", reply.(protocol.BookReply).ConfirmationID)
	return nil
}

func (m *Menu) doChange() error {
	id, err := promptString("Confirmation ID")
	if err != nil {
		return err
	}
	offsetStr, err := promptString("Offset in minutes (may be negative)")
	if err != nil {
		return err
	}
	offset, err := strconv.Atoi(offsetStr)
	if err != nil {
		return fmt.Errorf("invalid offset: %w", err)
	}
	_, err = m.client.Call(protocol.ChangeRequest{ConfirmationID: id, OffsetMinutes: int32(offset)})
	if err != nil {
		return err
	}
	fmt.Println("Booking changed.")
	return nil
}

func (m *Menu) doExtend() error {
	id, err := promptString("Confirmation ID")
	if err != nil {
		return err
	}
	extra, err := promptUint("Extra minutes", 0)
	if err != nil {
		return err
	}
	_, err = m.client.Call(protocol.ExtendRequest{ConfirmationID: id, ExtraMinutes: uint32(extra)})
	if err != nil {
		return err
	}
	fmt.Println("Booking extended.")
	return nil
}

func (m *Menu) doCancel() error {
	id, err := promptString("Confirmation ID")
	if err != nil {
		return err
	}
	_, err = m.client.Call(protocol.CancelRequest{ConfirmationID: id})
	if err != nil {
		return err
	}
	fmt.Println("Booking cancelled.")
	return nil
}

func (m *Menu) doMonitor() error {
	facility, err := promptString("Facility name")
	if err != nil {
		return err
	}
	duration, err := promptUint("Duration in seconds", 0)
	if err != nil {
		return err
	}
	fmt.Printf("Monitoring %q for %d seconds...\n", facility, duration)
	return m.client.Monitor(
		protocol.MonitorRegisterRequest{Facility: facility, DurationSeconds: uint32(duration)},
		func(update protocol.MonitorUpdate) {
			fmt.Printf("\n[update] %s now has %d free interval(s)\n", update.Facility, len(update.Free))
		},
	)
}

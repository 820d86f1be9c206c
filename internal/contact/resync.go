package contact

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ravnmail/ravncore/internal/model"
)

// addressRow is the subset of an emails row resync needs.
type addressRow struct {
	folderIsSent    bool
	fromAddress     string
	toJSON          string
	ccJSON          string
	bccJSON         string
	receivedAt      time.Time
	sentAt          *time.Time
}

// ResyncAccountCounters recomputes every contact's send_count/
// receive_count for an account from the emails table as ground truth.
// send_count is the number of occurrences of the address in any
// recipient field (To/Cc/Bcc) of a Sent-type-folder email; receive_count
// is occurrences as From, or in To/Cc/Bcc, of a non-Sent-folder email.
func (s *Store) ResyncAccountCounters(accountID string) error {
	rows, err := s.db.Query(`
		SELECT f.type = 'sent' AS is_sent, e.from_address, e.to_list, e.cc_list, e.bcc_list,
			e.received_at, e.sent_at
		FROM emails e
		JOIN folders f ON f.id = e.folder_id
		WHERE e.account_id = ? AND e.is_deleted = 0
	`, accountID)
	if err != nil {
		return fmt.Errorf("query emails for resync: %w", err)
	}
	defer rows.Close()

	type counter struct {
		send, receive int
		lastUsed      *time.Time
	}
	counters := make(map[string]*counter)

	bump := func(address string, isSend bool, when time.Time) {
		address = strings.ToLower(strings.TrimSpace(address))
		if address == "" {
			return
		}
		c, ok := counters[address]
		if !ok {
			c = &counter{}
			counters[address] = c
		}
		if isSend {
			c.send++
		} else {
			c.receive++
		}
		if c.lastUsed == nil || when.After(*c.lastUsed) {
			c.lastUsed = &when
		}
	}

	for rows.Next() {
		var r addressRow
		var sentAt *time.Time
		if err := rows.Scan(&r.folderIsSent, &r.fromAddress, &r.toJSON, &r.ccJSON, &r.bccJSON,
			&r.receivedAt, &sentAt); err != nil {
			return fmt.Errorf("scan resync row: %w", err)
		}
		r.sentAt = sentAt

		recipients := decodeAddresses(r.toJSON)
		recipients = append(recipients, decodeAddresses(r.ccJSON)...)
		recipients = append(recipients, decodeAddresses(r.bccJSON)...)

		when := r.receivedAt
		if r.folderIsSent {
			if r.sentAt != nil {
				when = *r.sentAt
			}
			for _, addr := range recipients {
				bump(addr, true, when)
			}
			continue
		}
		bump(r.fromAddress, false, when)
		for _, addr := range recipients {
			bump(addr, false, when)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for address, c := range counters {
		contact, err := s.ensure(address, "")
		if err != nil {
			return fmt.Errorf("ensure contact %s: %w", address, err)
		}
		if err := s.SetCounters(contact.ID, c.send, c.receive, c.lastUsed); err != nil {
			return fmt.Errorf("set counters %s: %w", address, err)
		}
	}
	return nil
}

func decodeAddresses(jsonList string) []string {
	if jsonList == "" {
		return nil
	}
	var addrs []model.Address
	if err := json.Unmarshal([]byte(jsonList), &addrs); err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

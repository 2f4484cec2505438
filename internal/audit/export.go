package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id", "timestamp", "action", "actor_id", "actor_username", "target_type",
	"target_id", "target_name", "details", "ip_address", "success",
}

// WriteCSV menulis entri sebagai CSV dengan baris header.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("audit: csv header: %w", err)
	}
	for _, entry := range entries {
		details, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("audit: csv details: %w", err)
		}
		record := []string{
			entry.ID,
			entry.Timestamp.UTC().Format(time.RFC3339Nano),
			string(entry.Action),
			entry.ActorID,
			entry.ActorUsername,
			string(entry.TargetType),
			entry.TargetID,
			entry.TargetName,
			string(details),
			entry.IPAddress,
			strconv.FormatBool(entry.Success),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("audit: csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteNDJSON menulis satu objek JSON per baris.
func WriteNDJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("audit: ndjson: %w", err)
		}
	}
	return nil
}

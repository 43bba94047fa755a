package store

import (
	"bufio"
	"strconv"
	"strings"
	"time"
)

// Source identifies how an address record came to exist.
type Source string

const (
	SourceAPIAllocate Source = "api-allocate"
	SourceLinodeSync  Source = "linode-sync"
	SourceInitializer Source = "initializer"
)

// Record is the value stored under a canonical allocation key. It is never
// parsed back by the allocator once written — only a key's existence is
// consulted — so new fields are safe to add without a migration.
type Record struct {
	Status      string
	Source      Source
	Region      string
	Subnet      string
	AllocatedAt time.Time
	LinodeID    *int
	Notes       string
}

// NewRecord builds a record for a freshly-claimed address.
func NewRecord(source Source, region, subnet string, linodeID *int) Record {
	return Record{
		Status:      "allocated",
		Source:      source,
		Region:      region,
		Subnet:      subnet,
		AllocatedAt: time.Now().UTC(),
		LinodeID:    linodeID,
	}
}

// Encode renders the record as a flat key: value text block, legible with
// plain key-value store browsing tools (no JSON pretty-printer required).
func (r Record) Encode() []byte {
	var sb strings.Builder
	sb.WriteString("status: " + r.Status + "\n")
	sb.WriteString("source: " + string(r.Source) + "\n")
	sb.WriteString("region: " + r.Region + "\n")
	sb.WriteString("subnet: " + r.Subnet + "\n")
	sb.WriteString("allocated_at: " + r.AllocatedAt.Format("2006-01-02T15:04:05Z") + "\n")
	if r.LinodeID != nil {
		sb.WriteString("linode_id: " + strconv.Itoa(*r.LinodeID) + "\n")
	} else {
		sb.WriteString("linode_id: null\n")
	}
	sb.WriteString("notes: " + r.Notes + "\n")
	return []byte(sb.String())
}

// DecodeRecord parses the key:value text block produced by Encode. Decoding
// is offered for operator tooling and tests; the allocator itself only
// checks key existence.
func DecodeRecord(data []byte) Record {
	var r Record
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		switch key {
		case "status":
			r.Status = val
		case "source":
			r.Source = Source(val)
		case "region":
			r.Region = val
		case "subnet":
			r.Subnet = val
		case "allocated_at":
			if t, err := time.Parse("2006-01-02T15:04:05Z", val); err == nil {
				r.AllocatedAt = t
			}
		case "linode_id":
			if val != "null" && val != "" {
				if id, err := strconv.Atoi(val); err == nil {
					r.LinodeID = &id
				}
			}
		case "notes":
			r.Notes = val
		}
	}
	return r
}

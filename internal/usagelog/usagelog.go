// Package usagelog tallies rule usage records the firmware prints on its
// console, and renders them as a CSV log or an aligned report.
package usagelog

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// marker prefixes every rule usage record on the console.
const marker = "st_rule"

// record is one fired rule as the firmware reports it.
type record struct {
	Sequence   string
	Backspaces int
	Trigger    string
	Completion string
}

// completedText is what the rule left on screen: the typed sequence minus
// the backspaced tail, plus the completion.
func (r record) completedText() string {
	seq := []rune(r.Sequence)
	keep := len(seq) - r.Backspaces
	if keep < 0 {
		keep = 0
	}
	return string(seq[:keep]) + r.Completion
}

// Collector is an observer counting rule usage records.
type Collector struct {
	mu     sync.Mutex
	counts map[record]int
	order  []record
}

// New builds an empty collector.
func New() *Collector {
	return &Collector{counts: map[record]int{}}
}

// Notify parses one console line, counting it when it is a usage record:
//
//	st_rule,<sequence>,<backspaces>,<trigger>,<completion>
//
// Any other line is ignored.
func (c *Collector) Notify(message string) {
	if !strings.HasPrefix(message, marker+",") {
		return
	}
	fields, err := csv.NewReader(strings.NewReader(message)).Read()
	if err != nil || len(fields) != 5 {
		return
	}
	backspaces, err := strconv.Atoi(fields[2])
	if err != nil {
		return
	}
	r := record{
		Sequence:   fields[1],
		Backspaces: backspaces,
		Trigger:    fields[3],
		Completion: fields[4],
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.counts[r]; !seen {
		c.order = append(c.order, r)
	}
	c.counts[r]++
}

// Len returns the number of distinct rules seen.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// WriteCSV writes every distinct record with its count, in first-seen
// order.
func (c *Collector) WriteCSV(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cw := csv.NewWriter(w)
	for _, r := range c.order {
		err := cw.Write([]string{
			r.Sequence,
			strconv.Itoa(r.Backspaces),
			r.Trigger,
			r.Completion,
			strconv.Itoa(c.counts[r]),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport writes an aligned "sequence -> result : count" summary,
// most used first.
func (c *Collector) WriteReport(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ordered := append([]record{}, c.order...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return c.counts[ordered[i]] > c.counts[ordered[j]]
	})

	seqWidth, outWidth := 0, 0
	for _, r := range ordered {
		if n := len(r.Sequence) + len(r.Trigger); n > seqWidth {
			seqWidth = n
		}
		if n := len(r.completedText()); n > outWidth {
			outWidth = n
		}
	}
	for _, r := range ordered {
		_, err := fmt.Fprintf(w, "%-*s -> %-*s : %d\n",
			seqWidth, r.Sequence+r.Trigger,
			outWidth, r.completedText(),
			c.counts[r])
		if err != nil {
			return err
		}
	}
	return nil
}

// Package compress implements the daily compression job of spec §4.6: once
// a day it folds every known target's rolling GroupBuffer sections for each
// past date into one digest per date covering all targets, so the raw
// per-target archive never grows without bound. Grounded on the teacher's scheduled-timer idiom in
// main.go, cron-scheduled via the pack's declared adhocore/gronx
// dependency rather than a hand-rolled "sleep until 23:55" loop.
package compress

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"roomkeeper/internal/config"
	"roomkeeper/internal/eventbus"
	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/persona"
)

// Job owns the engine-wide daily compression schedule. It is not per-target:
// one run folds every known target's buffer in a single pass.
type Job struct {
	Client  llmadapter.Client
	Store   *persona.Store
	Sys     *config.SystemConfig
	Bus     *eventbus.Bus
	Targets func() []persona.KnownTarget
}

// sectionHeaderRe matches the GroupBuffer wire format's section header
// exactly (spec §4: "lines starting with `## ` followed by an ISO-8601 UTC
// timestamp"), capturing the date portion for grouping.
var sectionHeaderRe = regexp.MustCompile(`(?m)^## (\d{4}-\d{2}-\d{2})T[\d:.]+Z?\s*$`)

// Run is the job's recurring schedule: block until ctx is
// cancelled, running once immediately and then once per day at the next
// local 23:55 (spec §4.6: "fires at the next local 23:55 ... re-schedules
// itself after each run").
func (j *Job) Run(ctx context.Context) {
	j.RunOnce(ctx)

	for {
		next, err := gronx.NextTickAfter(j.cronExpr(), time.Now(), false)
		if err != nil {
			j.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Message: "compress: invalid cron expression", Details: map[string]any{"error": err.Error()}})
			next = time.Now().Add(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			j.RunOnce(ctx)
		}
	}
}

func (j *Job) cronExpr() string {
	if j.Sys.DailyCompressCron != "" {
		return j.Sys.DailyCompressCron
	}
	return "55 23 * * *"
}

type targetSection struct {
	targetID string
	body     string // section body text only, header stripped
}

// RunOnce implements spec §4.6's single run: split every target's
// GroupBuffer by date, invert into date -> per-target sections, digest each
// past date oldest-first, and only rewrite a target's buffer file after its
// digest for that date has been written successfully (P10: a failed date's
// entries survive untouched for the next run to retry).
func (j *Job) RunOnce(ctx context.Context) {
	targets := j.Targets()
	today := time.Now().UTC().Format("2006-01-02")

	byDate := make(map[string][]targetSection)
	rawByTarget := make(map[string]string, len(targets))

	for _, t := range targets {
		raw, err := j.Store.GroupBufferRaw(t.ID)
		if err != nil {
			j.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Target: t.ID, Message: "compress: read group buffer failed", Details: map[string]any{"error": err.Error()}})
			continue
		}
		rawByTarget[t.ID] = raw

		for date, body := range splitSections(raw) {
			if date == today {
				continue
			}
			byDate[date] = append(byDate[date], targetSection{targetID: t.ID, body: body})
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, date := range dates {
		digest, err := j.digestDate(ctx, date, byDate[date])
		if err != nil {
			j.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Message: "compress: digest failed, will retry next run", Details: map[string]any{"date": date, "error": err.Error()}})
			continue
		}
		if err := j.Store.WriteDailyDigest(date, digest); err != nil {
			j.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Message: "compress: write daily digest failed", Details: map[string]any{"date": date, "error": err.Error()}})
			continue
		}

		for _, sec := range byDate[date] {
			raw := rawByTarget[sec.targetID]
			rewritten := removeDateSections(raw, date)
			if err := j.Store.WriteGroupBufferRaw(sec.targetID, rewritten); err != nil {
				j.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Target: sec.targetID, Message: "compress: rewrite group buffer failed", Details: map[string]any{"date": date, "error": err.Error()}})
				continue
			}
			rawByTarget[sec.targetID] = rewritten
		}
	}

	if err := j.Store.WriteCompressMeta(persona.CompressMeta{LastCompressTime: time.Now().UTC().Format(time.RFC3339)}); err != nil {
		j.Bus.Emit(eventbus.LogEntry{Level: eventbus.LevelError, Message: "compress: write compress_meta failed", Details: map[string]any{"error": err.Error()}})
	}
}

// digestDate asks the LLM for a <=500-word plain-text daily digest of one
// date's sections across every target that had activity that day.
func (j *Job) digestDate(ctx context.Context, date string, sections []targetSection) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize the day %s across the chats below into a single factual digest of at most 500 words, plain text, no headers.\n\n", date)
	for _, sec := range sections {
		fmt.Fprintf(&sb, "--- chat %s ---\n%s\n\n", sec.targetID, sec.body)
	}

	messages := []llmadapter.Message{
		llmadapter.NewSystemMessage("You write terse, factual daily summaries. Stay under 500 words. Do not editorialize."),
		llmadapter.NewUserMessage(sb.String()),
	}

	ch, err := j.Client.StreamChat(ctx, messages, nil)
	if err != nil {
		return "", fmt.Errorf("compress: stream chat: %w", err)
	}
	msg, _, err := llmadapter.CollectChunks(ch)
	if err != nil {
		return "", fmt.Errorf("compress: collect chunks: %w", err)
	}
	return strings.TrimSpace(msg.GetTextContent()), nil
}

// splitSections parses a GroupBuffer file into date -> concatenated section
// bodies (spec §4.6 step 1).
func splitSections(raw string) map[string]string {
	locs := sectionHeaderRe.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return nil
	}

	out := make(map[string]string)
	for i, loc := range locs {
		start := loc[1] // end of the header match (before trailing newline already consumed by \s*)
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		date := raw[loc[2]:loc[3]]
		body := strings.TrimSpace(raw[start:end])
		if existing, ok := out[date]; ok {
			out[date] = existing + "\n\n" + body
		} else {
			out[date] = body
		}
	}
	return out
}

// removeDateSections rewrites raw with every section whose header date
// equals date stripped out, preserving every other section (including
// today's and any other still-unprocessed past date) byte-for-byte.
func removeDateSections(raw, date string) string {
	locs := sectionHeaderRe.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return raw
	}

	var out strings.Builder
	cursor := 0
	for i, loc := range locs {
		sectionStart := loc[0]
		sectionEnd := len(raw)
		if i+1 < len(locs) {
			sectionEnd = locs[i+1][0]
		}
		sectionDate := raw[loc[2]:loc[3]]

		out.WriteString(raw[cursor:sectionStart])
		if sectionDate != date {
			out.WriteString(raw[sectionStart:sectionEnd])
		}
		cursor = sectionEnd
	}
	out.WriteString(raw[cursor:])
	return out.String()
}

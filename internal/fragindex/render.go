package fragindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func RenderText(reports []Report, full bool) string {
	var buf bytes.Buffer
	for i, report := range reports {
		if i > 0 {
			buf.WriteString("\n")
		}
		writeSection(&buf, "General", generalFields(report))
		for _, track := range report.Movie.Tracks {
			buf.WriteString("\n")
			writeSection(&buf, fmt.Sprintf("Track #%d", track.ID), trackFields(track, report.Movie.VideoTrackID))
		}
		if full && report.Index.Len() > 0 {
			buf.WriteString("\n")
			writeFragmentTable(&buf, report.Index)
		}
		buf.WriteString("\n")
		buf.WriteString(reportByLine())
		buf.WriteString("\n")
	}
	output := strings.TrimRight(buf.String(), "\n")
	return output + "\n\n"
}

type field struct {
	name  string
	value string
}

func generalFields(report Report) []field {
	fields := []field{
		{"Complete name", report.Path},
		{"File size", humanize.IBytes(uint64(max(report.Size, 0)))},
	}
	if !report.ModTime.IsZero() {
		fields = append(fields, field{"Modified", report.ModTime.UTC().Format(time.RFC3339)})
	}
	fields = append(fields,
		field{"Fragments", humanize.Comma(int64(report.Index.Len()))},
		field{"Seekable", yesNo(report.Index.IsSeekable())},
		field{"Duration", formatMicros(report.Index.DurationUs())},
		field{"Timescale", strconv.FormatUint(uint64(report.Movie.Timescale), 10)},
		field{"Native index", nativeIndexLabel(report.Layout)},
		field{"Movie header first", yesNo(report.Layout.MoovBeforeMoof)},
	)
	if report.Stats.FallbackUsed > 0 {
		fields = append(fields, field{"Fallback durations", strconv.Itoa(report.Stats.FallbackUsed)})
	}
	if report.Stats.Truncated {
		fields = append(fields, field{"Scan stopped", string(report.Stats.Stop)})
	}
	return fields
}

func trackFields(track Track, videoTrackID uint32) []field {
	fields := []field{
		{"ID", strconv.FormatUint(uint64(track.ID), 10)},
		{"Handler", track.Handler},
		{"Timescale", strconv.FormatUint(uint64(track.Timescale), 10)},
	}
	if track.ID == videoTrackID {
		fields = append(fields, field{"Timing source", "Yes"})
	}
	return fields
}

func nativeIndexLabel(layout Layout) string {
	switch {
	case layout.HasSidx && layout.HasMfra:
		return "sidx, mfra"
	case layout.HasSidx:
		return "sidx"
	case layout.HasMfra:
		return "mfra"
	}
	return "None"
}

func writeSection(buf *bytes.Buffer, title string, fields []field) {
	buf.WriteString(title)
	buf.WriteString("\n")
	for _, f := range fields {
		buf.WriteString(padRight(f.name, 41))
		buf.WriteString(": ")
		buf.WriteString(f.value)
		buf.WriteString("\n")
	}
}

func writeFragmentTable(buf *bytes.Buffer, idx Index) {
	buf.WriteString("Fragments\n")
	for i, f := range idx.Fragments() {
		fmt.Fprintf(buf, "%6d  %12d  %10s  %s +%s\n", i, f.Position, humanize.IBytes(uint64(f.Size)), formatMicros(f.TimeUs), formatMicros(f.DurationUs))
	}
}

func padRight(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return value + strings.Repeat(" ", width-len(value))
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func formatMicros(us int64) string {
	return (time.Duration(us) * time.Microsecond).Round(time.Millisecond).String()
}

func reportByLine() string {
	return fmt.Sprintf("ReportBy : %s - %s", AppName, FormatVersion(AppVersion))
}

type jsonReport struct {
	Path       string     `json:"path"`
	Size       int64      `json:"size"`
	ModTime    *time.Time `json:"mod_time,omitempty"`
	Layout     Layout     `json:"layout"`
	Movie      MovieInfo  `json:"movie"`
	Seekable   bool       `json:"seekable"`
	DurationUs int64      `json:"duration_us"`
	Stats      ScanStats  `json:"stats"`
	Fragments  []Fragment `json:"fragments,omitempty"`
}

type jsonOutput struct {
	CreatingLibrary string       `json:"creating_library"`
	Files           []jsonReport `json:"files"`
}

// ToJSON returns the JSON view of a report. Fragments are included only when
// full is set.
func (r Report) ToJSON(full bool) any {
	return buildJSONReport(r, full)
}

func buildJSONReport(report Report, full bool) jsonReport {
	out := jsonReport{
		Path:       report.Path,
		Size:       report.Size,
		Layout:     report.Layout,
		Movie:      report.Movie,
		Seekable:   report.Index.IsSeekable(),
		DurationUs: report.Index.DurationUs(),
		Stats:      report.Stats,
	}
	if !report.ModTime.IsZero() {
		mod := report.ModTime.UTC()
		out.ModTime = &mod
	}
	if full {
		out.Fragments = report.Index.Fragments()
	}
	return out
}

func RenderJSON(reports []Report, full bool) string {
	payload := jsonOutput{
		CreatingLibrary: AppName + " " + FormatVersion(AppVersion),
		Files:           make([]jsonReport, 0, len(reports)),
	}
	for _, report := range reports {
		payload.Files = append(payload.Files, buildJSONReport(report, full))
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "{}\n"
	}
	return string(data) + "\n"
}

package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"venuecast/internal/core"
	"venuecast/pkg/vc"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct{}

// Print renders human output.
func (HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case core.StatusResult:
		return printStatus(data)
	case core.ControlResult:
		return printControl(data)
	case core.TransportResult:
		return printTransport(data.Session)
	case core.HistoryResult:
		return printHistory(data)
	case core.AnnouncementsResult:
		return printAnnouncements(data)
	default:
		_, err := fmt.Fprintln(os.Stdout, "ok")
		return err
	}
}

func printStatus(result core.StatusResult) error {
	controller := "nobody"
	if result.Session.Controlled() {
		controller = result.Session.ControllerName
	}
	pterm.DefaultSection.Printf("Account %s (%s mode)", result.Session.AccountID, result.Mode)

	if err := printTransport(result.Session); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(os.Stdout, "controlled by %s (session v%d)\n", controller, result.Session.Version); err != nil {
		return err
	}

	if len(result.Venues) == 0 {
		return nil
	}
	data := pterm.TableData{{"VENUE", "NAME", "CLIENT", "LAST SEEN"}}
	for _, venue := range result.Venues {
		data = append(data, []string{
			venue.VenueID,
			venue.Name,
			venue.ClientID,
			time.Unix(venue.TS, 0).Format(time.RFC3339),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printControl(result core.ControlResult) error {
	if !result.Controlled {
		_, err := fmt.Fprintf(os.Stdout, "control released (session v%d)\n", result.Version)
		return err
	}
	_, err := fmt.Fprintf(os.Stdout, "%s is controlling (session v%d)\n", result.ControllerName, result.Version)
	return err
}

func printTransport(session vc.SessionState) error {
	status := "stopped"
	line := ""
	if session.CurrentTrack != nil {
		status = "paused"
		if session.IsPlaying {
			status = "playing"
		}
		line = formatTrack(*session.CurrentTrack) + "  " +
			formatPosition(session.PositionSeconds, session.CurrentTrack.DurationSeconds)
	}
	if session.Playlist != nil {
		line += fmt.Sprintf("  (playlist %s, %d/%d)",
			session.Playlist.Name, session.Playlist.Index+1, len(session.Playlist.Tracks))
	}
	_, err := fmt.Fprintln(os.Stdout, strings.TrimSpace(fmt.Sprintf("[%s]  %s", status, line)))
	return err
}

func printHistory(result core.HistoryResult) error {
	if len(result.Entries) == 0 {
		_, err := fmt.Fprintln(os.Stdout, "no play history")
		return err
	}
	data := pterm.TableData{{"WHEN", "TRACK", "PLAYLIST", "LISTENED", "REGION"}}
	for _, entry := range result.Entries {
		data = append(data, []string{
			entry.CreatedAt.Format(time.RFC3339),
			entry.TrackID,
			entry.PlaylistID,
			formatDuration(entry.SecondsListened),
			entry.RegionCode,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printAnnouncements(result core.AnnouncementsResult) error {
	if len(result.List.Announcements) == 0 {
		_, err := fmt.Fprintln(os.Stdout, "no announcements")
		return err
	}
	data := pterm.TableData{{"PUBLISHED", "TITLE", "LENGTH"}}
	for _, announcement := range result.List.Announcements {
		published := ""
		if announcement.PublishedAt > 0 {
			published = time.Unix(announcement.PublishedAt, 0).Format(time.RFC3339)
		}
		data = append(data, []string{
			published,
			announcement.Track.Title,
			formatDuration(float64(announcement.Track.DurationSeconds)),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func formatTrack(track vc.Track) string {
	if track.Performer != "" {
		return fmt.Sprintf("%s - %s", track.Performer, track.Title)
	}
	return track.Title
}

func formatPosition(positionSeconds float64, durationSeconds int64) string {
	if durationSeconds <= 0 {
		return formatDuration(positionSeconds)
	}
	return formatDuration(positionSeconds) + "/" + formatDuration(float64(durationSeconds))
}

func formatDuration(seconds float64) string {
	total := int(seconds + 0.5)
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Command askcli asks a SynergeReader server a question and prints the
// answer as it streams in.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/liliang-cn/synergereader/internal/domain"
	"github.com/liliang-cn/synergereader/internal/protocol"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(80)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	noteStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))

	errColor  = color.New(color.FgRed, color.Bold)
	doneColor = color.New(color.FgGreen)
	tokColor  = color.New(color.FgHiWhite)
)

func main() {
	_ = godotenv.Load()

	defaultServer := os.Getenv("SYNERGE_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:5000"
	}

	server := flag.String("server", defaultServer, "SynergeReader server URL")
	question := flag.String("q", "", "Question to ask")
	selected := flag.String("selected", "", "Selected text the question refers to")
	token := flag.String("token", os.Getenv("SYNERGE_TOKEN"), "Auth token")
	model := flag.String("model", "", "Generation model override")
	quiet := flag.Bool("quiet", false, "Do not print the context panel")
	flag.Parse()

	if *question == "" {
		*question = strings.Join(flag.Args(), " ")
	}
	if strings.TrimSpace(*question) == "" {
		fmt.Fprintln(os.Stderr, "usage: askcli [-server url] [-selected text] [-token t] -q question")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req := domain.AskRequest{
		Question:     *question,
		SelectedText: *selected,
		Model:        *model,
		AuthToken:    *token,
	}
	if err := ask(ctx, *server, req, !*quiet); err != nil {
		errColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func ask(ctx context.Context, server string, req domain.AskRequest, showContext bool) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/ask", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	dec := protocol.NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch ev := ev.(type) {
		case domain.ContextFrame:
			if showContext {
				fmt.Println(renderContext(ev))
			}
		case domain.TokenFrame:
			tokColor.Print(ev.Text)
		case domain.ErrorFrame:
			fmt.Println()
			return errors.New(ev.Message)
		case domain.CompletionFrame:
			fmt.Println()
			doneColor.Printf("saved as history entry %d\n", ev.EntryID)
		}
		if domain.IsTerminal(ev) {
			return nil
		}
	}
}

func renderContext(f domain.ContextFrame) string {
	var b strings.Builder

	source := "documents"
	if f.HasExternalSources {
		source = "web search"
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Sources: %s (similarity %.2f)", source, f.SimilarityScore)))
	b.WriteString("\n")

	for i, c := range f.APACitations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	if len(f.RelevantHistory) > 0 {
		fmt.Fprintf(&b, "%d related past question(s)\n", len(f.RelevantHistory))
	}
	if f.CitationNote != "" {
		b.WriteString(noteStyle.Render(f.CitationNote))
	}

	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

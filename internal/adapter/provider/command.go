package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cwygoda/tokbot/internal/config"
	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/httputil"
)

// Command runs an external program for each link and treats every HTTPS line
// it prints as a candidate, e.g. yt-dlp -g {url}.
type Command struct {
	name    string
	command string
	args    []string
	kind    domain.DeclaredKind
}

// NewCommand creates a provider from config.
func NewCommand(cc config.CommandConfig) *Command {
	return &Command{
		name:    cc.Name,
		command: cc.Command,
		args:    cc.Args,
		kind:    domain.DeclaredKind(cc.Kind).Normalize(),
	}
}

func (p *Command) Name() string {
	return p.name
}

// FetchCandidates implements domain.Provider.
func (p *Command) FetchCandidates(ctx context.Context, src domain.SourceURL) ([]domain.Descriptor, error) {
	// Build args with {url} placeholder replaced
	args := make([]string, len(p.args))
	for i, arg := range p.args {
		args[i] = strings.ReplaceAll(arg, "{url}", src.String())
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", p.command, err, strings.TrimSpace(stderr.String()))
	}

	var descs []domain.Descriptor
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if httputil.ValidateURL(line) != nil || seen[line] {
			continue
		}
		seen[line] = true
		descs = append(descs, domain.Descriptor{URL: line, DeclaredKind: p.kind})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s output: %w", p.command, err)
	}
	return descs, nil
}

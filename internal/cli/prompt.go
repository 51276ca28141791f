package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// errNotTerminal is returned when a hidden prompt is needed but stdin is not
// a terminal.
var errNotTerminal = errors.New("stdin is not a terminal")

// readPasswordFromTerminal prompts on stderr and reads a line from stdin
// without echo.
func readPasswordFromTerminal(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNotTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// prompter reads answers for interactive commands.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// line asks label and returns the trimmed answer, or def when it is empty.
func (p *prompter) line(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	input, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		if errors.Is(err, io.EOF) {
			return def, nil
		}
		return "", err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return def, nil
	}
	return input, nil
}

// number asks for a positive integer, repeating until one is given.
func (p *prompter) number(label string, def int) (int, error) {
	for {
		s, err := p.line(label, strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		v, convErr := strconv.Atoi(s)
		if convErr == nil && v > 0 {
			return v, nil
		}
		fmt.Fprintln(p.out, "  Please enter a positive number.")
	}
}

// choice asks for one of options, repeating until a valid one is given.
func (p *prompter) choice(label, def string, options []string) (string, error) {
	for {
		s, err := p.line(fmt.Sprintf("%s (%s)", label, strings.Join(options, ", ")), def)
		if err != nil {
			return "", err
		}
		for _, o := range options {
			if strings.EqualFold(s, o) {
				return o, nil
			}
		}
		fmt.Fprintln(p.out, "Invalid choice, please try again.")
	}
}

// confirm asks a yes/no question.
func (p *prompter) confirm(label string) (bool, error) {
	s, err := p.line(label+" [y/N]", "")
	if err != nil {
		return false, err
	}
	s = strings.ToLower(s)
	return s == "y" || s == "yes", nil
}

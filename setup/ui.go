package setup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var errInputEnded = errors.New("input ended before setup finished")

// prompter asks the wizard's questions one line at a time. An empty answer
// keeps the offered default; an answer failing its check is asked again.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) heading(title string) {
	fmt.Fprintf(p.out, "\n== %s ==\n", title)
}

func (p *prompter) say(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *prompter) answer(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if errors.Is(err, io.EOF) {
		if line == "" {
			return "", errInputEnded
		}
	} else if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// text asks for a free-form value. check may be nil.
func (p *prompter) text(label, def string, check func(string) error) (string, error) {
	prompt := label + ": "
	if def != "" {
		prompt = fmt.Sprintf("%s [%s]: ", label, def)
	}
	for {
		v, err := p.answer(prompt)
		if err != nil {
			return "", err
		}
		if v == "" {
			v = def
		}
		if check == nil {
			return v, nil
		}
		if err := check(v); err != nil {
			p.say("  %v", err)
			continue
		}
		return v, nil
	}
}

// secret never echoes the stored value; it only shows whether one is set.
func (p *prompter) secret(label, current string, required bool) (string, error) {
	prompt := label + ": "
	if current != "" {
		prompt = label + " [set]: "
	}
	for {
		v, err := p.answer(prompt)
		if err != nil {
			return "", err
		}
		if v == "" {
			v = current
		}
		if v != "" || !required {
			return v, nil
		}
		p.say("  a value is required")
	}
}

func (p *prompter) yesNo(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	for {
		v, err := p.answer(fmt.Sprintf("%s [%s]: ", label, hint))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(v) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		p.say("  answer y or n")
	}
}

func (p *prompter) number(label string, def, least int) (int, error) {
	v, err := p.text(label, strconv.Itoa(def), func(s string) error {
		if n, err := strconv.Atoi(s); err != nil || n < least {
			return fmt.Errorf("enter a whole number >= %d", least)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

// option is one value of an enumerated setting.
type option struct {
	value string
	about string
}

// choose takes an option's number or its value. The default is current when
// it is listed, the first option otherwise.
func (p *prompter) choose(label string, opts []option, current string) (string, error) {
	def := 0
	p.say("%s:", label)
	for i, o := range opts {
		mark := " "
		if o.value == current {
			mark = "*"
			def = i
		}
		p.say("  %d. [%s] %-8s %s", i+1, mark, o.value, o.about)
	}
	v, err := p.text("Choice", strconv.Itoa(def+1), func(s string) error {
		if optionIndex(opts, s) < 0 {
			return fmt.Errorf("pick 1-%d or one of the listed values", len(opts))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return opts[optionIndex(opts, v)].value, nil
}

func optionIndex(opts []option, s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= len(opts) {
			return n - 1
		}
		return -1
	}
	for i, o := range opts {
		if strings.EqualFold(o.value, s) {
			return i
		}
	}
	return -1
}

func required(v string) error {
	if v == "" {
		return errors.New("a value is required")
	}
	return nil
}

// runtimeURL accepts an absolute http or https URL naming a host.
func runtimeURL(v string) error {
	u, err := url.Parse(v)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%q is not an http(s) URL with a host", v)
	}
	return nil
}

func hostPort(v string) error {
	if _, port, err := net.SplitHostPort(v); err != nil || port == "" {
		return fmt.Errorf("%q is not host:port", v)
	}
	return nil
}

// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/creachadair/sysprobe"
	"github.com/rs/zerolog"
)

const shellHelp = `Commands:
  os                  report the operating system of the server
  time                report the current time on the server
  uptime              report the time since the server started
  memory              report total and free memory
  drives              list mounted volumes
  rights <path>       list the access entries of path
  owner <path>        report the owner of path
  add <host:port>     add a server and make it active
  srv <n>             make server n active
  set <host:port>     change the address of the active server
  list                list servers
  disconnect          close the connection to the active server
  help                print this message
  exit                leave the shell
`

// A shell is an interactive session over a set of servers, one of which is
// active at a time.
type shell struct {
	out  io.Writer
	log  zerolog.Logger
	keys sysprobe.KeyStore
	opts *sysprobe.ConnectorOptions

	conns  []*sysprobe.Connector
	active int
	nextID sysprobe.ConnID
}

func (s *shell) close() {
	for _, c := range s.conns {
		c.Close()
	}
}

// add connects to the server at addr and makes it active. The server is not
// added if it does not answer.
func (s *shell) add(ctx context.Context, addr string) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	s.nextID++
	c := sysprobe.NewConnector(s.nextID, addr, s.keys, s.opts)
	if !c.Check(ctx) {
		c.Close()
		return fmt.Errorf("cannot connect to %s", addr)
	}
	s.conns = append(s.conns, c)
	s.active = len(s.conns) - 1
	return nil
}

func (s *shell) current() (*sysprobe.Connector, error) {
	if len(s.conns) == 0 {
		return nil, errors.New("no active server (use add <host:port>)")
	}
	return s.conns[s.active], nil
}

func (s *shell) prompt() string {
	if len(s.conns) == 0 {
		return "[X] > "
	}
	return fmt.Sprintf("[%d] %s > ", s.active, s.conns[s.active].Addr())
}

// exec executes a single command line. It reports true if the shell should
// exit.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	args := splitArgs(line)
	if len(args) == 0 {
		return false, nil
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "exit", "quit":
		return true, nil

	case "help":
		fmt.Fprint(s.out, shellHelp)

	case "add":
		if len(rest) != 1 {
			return false, errors.New("usage: add <host:port>")
		}
		return false, s.add(ctx, rest[0])

	case "srv":
		if len(rest) != 1 {
			return false, errors.New("usage: srv <n>")
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 0 || n >= len(s.conns) {
			return false, fmt.Errorf("no server %q (have %d)", rest[0], len(s.conns))
		}
		s.active = n

	case "set":
		if len(rest) != 1 {
			return false, errors.New("usage: set <host:port>")
		}
		c, err := s.current()
		if err != nil {
			return false, err
		} else if err := checkAddr(rest[0]); err != nil {
			return false, err
		}
		c.SetServer(rest[0])

	case "list":
		for i, c := range s.conns {
			mark := " "
			if i == s.active {
				mark = "*"
			}
			fmt.Fprintf(s.out, "%s [%d] %s (%v)\n", mark, i, c.Addr(), c.State())
		}

	case "disconnect":
		c, err := s.current()
		if err != nil {
			return false, err
		}
		return false, c.Close()

	default:
		if _, err := sysprobe.ParseRequestKind(cmd); err != nil {
			return false, fmt.Errorf("unknown command %q (try help)", cmd)
		}
		c, err := s.current()
		if err != nil {
			return false, err
		}
		return false, runRequest(ctx, s.out, c, args)
	}
	return false, nil
}

// run reads and executes commands from in until it is exhausted or an exit
// command is read. Errors from commands are reported and do not end the
// session.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, s.prompt())
		if !sc.Scan() {
			fmt.Fprintln(s.out)
			return sc.Err()
		}
		line := sc.Text()
		s.log.Debug().Str("line", line).Msg("command")
		quit, err := s.exec(ctx, line)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func checkAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	} else if host == "" {
		return fmt.Errorf("invalid address %q: missing host", addr)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// splitArgs splits line into words separated by spaces. Text between double
// quotes is kept together, so that paths may contain spaces.
func splitArgs(line string) []string {
	var args []string
	var cur strings.Builder
	quoted, inWord := false, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			inWord = true
		case (r == ' ' || r == '\t') && !quoted:
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args
}

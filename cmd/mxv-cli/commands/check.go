package commands

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mxverify/mxverify/cmd/mxv-cli/bulk"
	"github.com/mxverify/mxverify/cmd/mxv-cli/iterator"
	"github.com/mxverify/mxverify/verifier"
)

var (
	checkSettings = &CheckSettings{}
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify e-mail addresses",
	Long: `Verify one or more e-mail addresses against the mail systems
responsible for them. Reads a single address from the argument, or many from
a pipe. Results are written as JSON, one document per line.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 {
			return errors.New("too many arguments, expected 0 or 1")
		}

		if len(args) > 0 && isStdinPiped() {
			return errors.New("can't read both from stdin and argument")
		}

		if len(args) == 0 && !isStdinPiped() {
			return errors.New("missing argument")
		}

		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		v := verifier.NewEmailVerifier(verifierOptions()...)

		var it *iterator.CallbackIterator
		if len(args) > 0 {
			it = createTextIterator(strings.NewReader(args[0]))
		} else if isStdinPiped() {
			switch checkSettings.Format {
			case "":
				fallthrough
			case "text":
				it = createTextIterator(os.Stdin)
			case "csv":
				it = createCSVIterator(os.Stdin)
			default:
				cmd.PrintErrf("bad format %q", checkSettings.Format)
				return
			}
		}

		if it == nil {
			cmd.PrintErr("No suitable iterator found, this is.. unexpected.")
			return
		}

		jsonEncoder := json.NewEncoder(cmd.OutOrStdout())
		sink := newOrderedSink(func(r CheckResult) {
			if err := jsonEncoder.Encode(r); err != nil {
				cmd.PrintErr(err)
			}
		})

		var seq uint64
		runner := bulk.NewRunner(int(checkSettings.Workers))
		for it.Next() {
			email, err := it.Value()
			if err != nil {
				cmd.PrintErr(err)
				continue
			}

			if email == "" {
				continue
			}

			email, seq := email, seq
			runner.Submit(func() {
				ctx, cancel := context.WithTimeout(cmd.Context(), checkSettings.Check.TTL)
				defer cancel()

				sink.Put(seq, check(ctx, v, email))
			})

			seq++
		}

		runner.Wait()

		if err := it.Close(); err != nil {
			cmd.PrintErr(err)
		}
	},
}

// newOrderedSink returns a sink emitting results in submission order, no
// matter which worker finishes first. Results arriving ahead of their turn
// are parked until the gap closes.
func newOrderedSink(emit func(CheckResult)) *orderedSink {
	return &orderedSink{
		pending: make(map[uint64]CheckResult),
		emit:    emit,
	}
}

type orderedSink struct {
	mu      sync.Mutex
	pending map[uint64]CheckResult
	next    uint64
	emit    func(CheckResult)
}

func (s *orderedSink) Put(seq uint64, r CheckResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[seq] = r
	for {
		r, ok := s.pending[s.next]
		if !ok {
			return
		}

		delete(s.pending, s.next)
		s.next++
		s.emit(r)
	}
}

func verifierOptions() []verifier.Option {
	options := []verifier.Option{
		verifier.WithTimeouts(checkSettings.Check.DNSTimeout, checkSettings.Check.SMTPTimeout),
	}

	if checkSettings.Check.Resolver != nil {
		server := net.JoinHostPort(checkSettings.Check.Resolver.String(), "53")
		options = append(options, verifier.WithNameservers([]string{server}))
	}

	if checkSettings.Check.Hello != "" {
		options = append(options, verifier.WithHELO(checkSettings.Check.Hello))
	}

	if checkSettings.Check.From != "" {
		options = append(options, verifier.WithFrom(checkSettings.Check.From))
	}

	if checkSettings.Check.SkipTLS {
		options = append(options, verifier.WithTLSPolicy(verifier.TLSSkip))
	}

	return options
}

func check(ctx context.Context, v *verifier.EmailVerifier, email string) CheckResult {
	var result = CheckResult{
		Email:   email,
		Version: 1,
	}

	r, err := v.Verify(ctx, email)
	if err != nil {
		result.Verdict = verifier.Invalid.String()
		result.Reason = err.Error()
		return result
	}

	result.Valid = r.Verdict.Bool()
	result.Verdict = r.Verdict.String()

	if r.Failure != nil {
		result.Reason = string(r.Failure.Category)
		for _, d := range r.Failure.Diagnostics {
			result.Diagnostics = append(result.Diagnostics, d.String())
		}
	}

	return result
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkSettings.Format, "format", "text", "text or csv. Text means a single email address per line '\\n'")
	checkCmd.Flags().UintVar(&checkSettings.Workers, "workers", 4, "Number of addresses to verify concurrently")
	checkCmd.Flags().Uint64Var(&checkSettings.CSV.skipRows, "csv-skip-rows", 0, "Rows to skip, useful when wanting to skip the header in CSV files")
	checkCmd.Flags().Uint64Var(&checkSettings.CSV.column, "csv-column", 0, "The column to read email addresses from, 0-indexed")
	checkCmd.Flags().IPVar(&checkSettings.Check.Resolver, "resolver", nil, "Custom resolver to use, otherwise system default is used")
	checkCmd.Flags().DurationVar(&checkSettings.Check.TTL, "ttl", 30*time.Second, "Maximum duration of a single check")
	checkCmd.Flags().DurationVar(&checkSettings.Check.DNSTimeout, "dns-timeout", 10*time.Second, "Maximum duration of an MX lookup")
	checkCmd.Flags().DurationVar(&checkSettings.Check.SMTPTimeout, "smtp-timeout", 10*time.Second, "Maximum duration of each SMTP conversation step")
	checkCmd.Flags().StringVar(&checkSettings.Check.Hello, "helo", "", "Hostname to present in the HELO/EHLO, defaults to the local hostname")
	checkCmd.Flags().StringVar(&checkSettings.Check.From, "from", "", "Envelope sender to use, defaults to the null sender")
	checkCmd.Flags().BoolVar(&checkSettings.Check.SkipTLS, "skip-tls", false, "Never attempt a STARTTLS upgrade")
}

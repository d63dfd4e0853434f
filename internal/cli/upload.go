package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	uploadTarget   targetFlags
	uploadPlain    bool
	uploadWait     time.Duration
	downloadOutput string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file and send it as a message",
	Long: `Upload a file and send it to a contact or a channel.

Progress is shown interactively unless --plain is set.

Examples:
  chatsync upload --contact 64f1c2... report.pdf
  chatsync upload --channel 650a9e... photo.png --plain`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download <file-url>",
	Short: "Download a message attachment",
	Long: `Download a file attachment by the URL shown in the history.

Examples:
  chatsync download uploads/files/1700000000/report.pdf
  chatsync download uploads/files/1700000000/report.pdf -o ~/report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	uploadTarget.register(uploadCmd, true)
	uploadCmd.Flags().BoolVar(&uploadPlain, "plain", false, "print progress lines instead of the interactive bar")
	uploadCmd.Flags().DurationVar(&uploadWait, "wait", 5*time.Second, "how long to wait for the server echo")

	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output path (default: base name of the URL)")
	rootCmd.AddCommand(downloadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := newSession(ctx, sessionOptions{connect: true})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.LoadRoster(ctx); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	target, err := uploadTarget.resolve(s)
	if err != nil {
		return err
	}
	s.Store().SelectTarget(target)

	name := filepath.Base(path)
	n := len(s.Store().Messages())

	if uploadPlain {
		last := -10
		err = s.SendFile(ctx, name, f, func(pct int) {
			if pct/10 != last/10 {
				fmt.Printf("%s %3d%%\n", name, pct)
			}
			last = pct
		})
	} else {
		err = RunTransferProgress(name, cancel, func(report func(int)) error {
			return s.SendFile(ctx, name, f, report)
		})
	}
	if err != nil {
		return err
	}

	if !waitForMessage(s, n, uploadWait) {
		return fmt.Errorf("no confirmation from server after %s", uploadWait)
	}
	if uploadPlain {
		fmt.Println(defaultTheme.completedStyle().Render("✓ Sent " + name))
	}
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	fileURL := args[0]
	out := downloadOutput
	if out == "" {
		out = filepath.Base(fileURL)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}

	s, err := newSession(context.Background(), sessionOptions{})
	if err != nil {
		f.Close()
		return err
	}
	defer s.Close()

	n, err := s.Download(context.Background(), fileURL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("download: %w", err)
	}

	fmt.Printf("%s %s (%d bytes)\n", defaultTheme.completedStyle().Render("✓ Saved"), out, n)
	return nil
}

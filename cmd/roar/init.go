package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/logger"
	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/roarconfig"
	"github.com/roar-ml/roar/internal/store"
)

func newInitCommand(gf *globalFlags) *cobra.Command {
	var yes, no bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .roar/ and write a default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			roarDir, err := resolveRoarDir(gf)
			if err != nil {
				return err
			}
			log := logger.FromContext(cmd.Context())

			if _, err := os.Stat(roarDir); err == nil {
				log.Infof("%s already exists", roarDir)
			} else {
				if err := os.MkdirAll(roarDir, 0o755); err != nil {
					return rerr.Wrap(rerr.KindPreflight, "create .roar directory", err)
				}
			}

			cfg := roarconfig.Default()
			if err := roarconfig.Save(roarDir, cfg); err != nil {
				return err
			}

			s, err := store.Open(filepath.Join(roarDir, "roar.db"))
			if err != nil {
				return err
			}
			defer s.Close()

			gitignore := shouldAddGitignore(yes, no)
			if gitignore {
				if err := addToGitignore(filepath.Dir(roarDir), ".roar/"); err != nil {
					log.Warnf("could not update .gitignore: %v", err)
				}
			}

			log.Infof("initialized %s", roarDir)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "add .roar/ to .gitignore without asking")
	cmd.Flags().BoolVarP(&no, "no", "n", false, "don't touch .gitignore")
	return cmd
}

func shouldAddGitignore(yes, no bool) bool {
	if no {
		return false
	}
	if yes {
		return true
	}
	fmt.Print("Add .roar/ to .gitignore? [Y/n] ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "" || line == "y" || line == "yes"
}

func addToGitignore(repoRoot, entry string) error {
	path := filepath.Join(repoRoot, ".gitignore")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(entry + "\n")
	return err
}

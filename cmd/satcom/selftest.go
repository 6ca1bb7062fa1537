package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
)

func newSelfTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run the digest known-answer self tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := crypto.RunSelfTest()

			algs := make([]constants.DigestAlgorithm, 0, len(result.Algorithms))
			for alg := range result.Algorithms {
				algs = append(algs, alg)
			}
			sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })

			for _, alg := range algs {
				status := "PASS"
				if !result.Algorithms[alg] {
					status = "FAIL"
				}
				fmt.Fprintf(a.out, "  %-14s %s\n", alg, status)
			}
			fmt.Fprintf(a.out, "FIPS mode: %t\n", crypto.FIPSMode())

			if !result.Passed {
				return fmt.Errorf("%w: %s", qerrors.ErrSelfTestFailed, strings.Join(result.Errors, "; "))
			}
			fmt.Fprintln(a.out, "✓ Self tests passed")
			return nil
		},
	}
}

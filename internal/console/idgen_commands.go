package console

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"idgen_server/infra/middleware"
	"idgen_server/pkg/convert"
	"idgen_server/pkg/crypto"
)

// nodeFlag registers --node; -1 means the service default.
func nodeFlag(cmd *cobra.Command) *int64 {
	return cmd.Flags().Int64P("node", "n", -1, "node id (default: service default)")
}

func (c *Console) resolveNode(node int64) int64 {
	if node < 0 {
		return c.service.DefaultNodeID()
	}
	return node
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func (c *Console) nextCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Issue one id",
		Args:  cobra.NoArgs,
	}
	node := nodeFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		issued, err := c.service.Next(cmd.Context(), c.resolveNode(*node))
		if err != nil {
			return err
		}
		c.okColor.Fprintf(c.out, "%d", issued.ID)
		fmt.Fprintf(c.out, "  node=%d\n", issued.NodeID)
		return nil
	}
	return cmd
}

func (c *Console) batchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <count>",
		Short: "Issue count ids and check they are increasing",
		Args:  cobra.ExactArgs(1),
	}
	node := nodeFlag(cmd)
	quiet := cmd.Flags().BoolP("quiet", "q", false, "print only the summary")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		count := convert.TryConvert(args[0], 0)
		if count <= 0 {
			return fmt.Errorf("count must be a positive integer, got %q", args[0])
		}

		start := time.Now()
		batch, err := c.service.Batch(cmd.Context(), c.resolveNode(*node), count)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		if !*quiet {
			for _, id := range batch.IDs {
				fmt.Fprintln(c.out, id)
			}
		}
		for i := 1; i < len(batch.IDs); i++ {
			if batch.IDs[i] <= batch.IDs[i-1] {
				c.errColor.Fprintf(c.out, "ids out of order at %d: %d <= %d\n", i, batch.IDs[i], batch.IDs[i-1])
				return nil
			}
		}
		c.okColor.Fprintf(c.out, "%d ids from node %d in %s\n", len(batch.IDs), batch.NodeID, elapsed)
		return nil
	}
	return cmd
}

func (c *Console) decodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <id>",
		Short: "Split an id into time, node and sequence",
		Args:  cobra.ExactArgs(1),
	}
	node := nodeFlag(cmd)
	cmd.RunE = func(_ *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		decoded, err := c.service.Decode(id, *node)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "id:        %d\n", decoded.ID)
		fmt.Fprintf(c.out, "time:      %s\n", decoded.Time.Format(time.RFC3339Nano))
		fmt.Fprintf(c.out, "timestamp: %d\n", decoded.Timestamp)
		fmt.Fprintf(c.out, "node:      %d\n", decoded.NodeID)
		fmt.Fprintf(c.out, "sequence:  %d\n", decoded.Sequence)
		return nil
	}
	return cmd
}

func (c *Console) generatorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "generators",
		Aliases: []string{"ls"},
		Short:   "List live generators",
		Args:    cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			infos := c.service.Generators()
			if len(infos) == 0 {
				c.warnColor.Fprintln(c.out, "no generators yet")
				return
			}
			for _, info := range infos {
				fmt.Fprintf(c.out, "node=%-5d layout=%-9s policy=%-8s epoch=%d\n",
					info.NodeID, info.Layout, info.Policy, info.Epoch)
			}
		},
	}
}

func (c *Console) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <node>",
		Short: "Drop the generator for a node id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid node %q", args[0])
			}
			removed, err := c.service.RemoveGenerator(cmd.Context(), node)
			if err != nil {
				return err
			}
			if !removed {
				c.warnColor.Fprintf(c.out, "no generator for node %d\n", node)
				return nil
			}
			c.okColor.Fprintf(c.out, "removed node %d\n", node)
			return nil
		},
	}
}

func (c *Console) opaqueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "opaque <id|token>",
		Short: "Encode an id as an opaque token, or decode a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if id, err := parseID(args[0]); err == nil {
				token, err := c.service.EncodeOpaque(id)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, token)
				return nil
			}
			id, err := c.service.DecodeOpaque(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, id)
			return nil
		},
	}
}

func (c *Console) hashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <md5|sha256> <text>",
		Short: "Hash text (md5 as hex, sha256 as base64)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			switch strings.ToLower(args[0]) {
			case "md5":
				fmt.Fprintln(c.out, crypto.HashMD5(text))
			case "sha256":
				fmt.Fprintln(c.out, crypto.HashSHA256(text))
			default:
				return fmt.Errorf("unknown hash %q", args[0])
			}
			return nil
		},
	}
}

func (c *Console) cipherCommand(use, short string, run func(crypto.Algorithm, string, string, ...crypto.Options) (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <aes|des|3des> <key> <text>",
		Short: short,
		Args:  cobra.MinimumNArgs(3),
	}
	iv := cmd.Flags().String("iv", "", "initialisation vector (default: algorithm default)")
	cmd.RunE = func(_ *cobra.Command, args []string) error {
		alg, err := crypto.ParseAlgorithm(args[0])
		if err != nil {
			return err
		}
		opts := crypto.DefaultOptions(alg)
		if *iv != "" {
			opts.IV = *iv
		}
		out, err := run(alg, args[1], strings.Join(args[2:], " "), opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, out)
		return nil
	}
	return cmd
}

func (c *Console) encryptCommand() *cobra.Command {
	return c.cipherCommand("encrypt", "Encrypt text with a CBC cipher", crypto.Encrypt)
}

func (c *Console) decryptCommand() *cobra.Command {
	return c.cipherCommand("decrypt", "Decrypt base64 ciphertext", crypto.Decrypt)
}

func (c *Console) tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API token",
		Args:  cobra.NoArgs,
	}
	subject := cmd.Flags().String("subject", "console", "token subject")
	role := cmd.Flags().String("role", middleware.RoleAdmin, "token role")
	ttl := cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	cmd.RunE = func(*cobra.Command, []string) error {
		token, err := middleware.IssueToken(c.jwtSecret, *subject, *role, *ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, token)
		return nil
	}
	return cmd
}

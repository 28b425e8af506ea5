package main

import (
	"context"
	"fmt"
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/spf13/cobra"

	"github.com/gestalt-social/gestalt/internal/client"
	"github.com/gestalt-social/gestalt/internal/events"
	"github.com/gestalt-social/gestalt/internal/keys"
	"github.com/gestalt-social/gestalt/internal/search"
)

// normalizePubkey accepts hex or npub input.
func normalizePubkey(input string) (string, error) {
	if strings.HasPrefix(input, "npub") {
		prefix, data, err := nip19.Decode(input)
		if err != nil || prefix != "npub" {
			return "", fmt.Errorf("invalid npub: %s", input)
		}
		return data.(string), nil
	}
	if !nostr.IsValid32ByteHex(input) {
		return "", fmt.Errorf("invalid pubkey: %s", input)
	}
	return input, nil
}

func printEvents(evts []*nostr.Event) {
	for _, evt := range evts {
		npub, _ := nip19.EncodePublicKey(evt.PubKey)
		fmt.Printf("%s  %s\n  %s\n\n", evt.CreatedAt.Time().Format("2006-01-02 15:04"), npub, evt.Content)
	}
	fmt.Printf("%d events\n", len(evts))
}

func init() {
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := keys.Generate()
			if err != nil {
				return err
			}
			npub, _ := signer.Npub()
			nsec, _ := signer.Nsec()
			fmt.Printf("pubkey: %s\nnpub:   %s\nnsec:   %s\n", signer.PublicKey(), npub, nsec)
			fmt.Println("\nStore the nsec somewhere safe; it cannot be recovered.")
			return nil
		},
	}

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the configured identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				pk := c.PublicKey()
				if pk == "" {
					fmt.Println("no identity configured (read-only)")
					return nil
				}
				npub, _ := nip19.EncodePublicKey(pk)
				fmt.Printf("pubkey: %s\nnpub:   %s\n", pk, npub)
				return nil
			})
		},
	}

	publishCmd := &cobra.Command{
		Use:   "publish <text>",
		Short: "Publish a text note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				evt, err := c.PublishNote(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("published %s\n", evt.ID)
				return nil
			})
		},
	}

	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Show recent notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			following, _ := cmd.Flags().GetBool("following")
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				var (
					evts []*nostr.Event
					err  error
				)
				if following {
					evts, err = c.FollowingFeed(ctx, limit)
				} else {
					evts, err = c.Feed(ctx, events.PostOptions{Limit: limit})
				}
				if err != nil {
					return err
				}
				printEvents(evts)
				return nil
			})
		},
	}
	feedCmd.Flags().Int("limit", 20, "Maximum notes to fetch")
	feedCmd.Flags().Bool("following", false, "Only notes from accounts you follow")

	profileCmd := &cobra.Command{
		Use:   "profile <pubkey|npub>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := normalizePubkey(args[0])
			if err != nil {
				return err
			}
			refresh, _ := cmd.Flags().GetBool("refresh")
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				var p events.Profile
				if refresh {
					p, err = c.RefreshProfile(ctx, pk)
				} else {
					p, err = c.Profile(ctx, pk)
				}
				if err != nil {
					return err
				}
				fmt.Printf("name:    %s\nabout:   %s\nnip05:   %s\nwebsite: %s\n",
					p.BestName(), p.About, p.NIP05, p.Website)
				return nil
			})
		},
	}
	profileCmd.Flags().Bool("refresh", false, "Bypass the profile cache")

	followCmd := &cobra.Command{
		Use:   "follow <pubkey|npub>",
		Short: "Follow an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := normalizePubkey(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				return c.Follow(ctx, pk)
			})
		},
	}

	unfollowCmd := &cobra.Command{
		Use:   "unfollow <pubkey|npub>",
		Short: "Unfollow an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := normalizePubkey(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				return c.Unfollow(ctx, pk)
			})
		},
	}

	followingCmd := &cobra.Command{
		Use:   "following",
		Short: "List accounts you follow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				pks, err := c.Following(ctx)
				if err != nil {
					return err
				}
				for _, pk := range pks {
					npub, _ := nip19.EncodePublicKey(pk)
					fmt.Println(npub)
				}
				fmt.Printf("%d accounts\n", len(pks))
				return nil
			})
		},
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search notes, hashtags or profiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			profiles, _ := cmd.Flags().GetBool("profiles")
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				query := args[0]
				if profiles {
					matches, err := c.SearchProfiles(ctx, query, limit)
					if err != nil {
						return err
					}
					for _, m := range matches {
						npub, _ := nip19.EncodePublicKey(m.PubKey)
						fmt.Printf("%s  %s\n", npub, m.Profile.BestName())
					}
					return nil
				}
				var (
					evts []*nostr.Event
					err  error
				)
				if strings.HasPrefix(query, "#") {
					evts, err = c.SearchHashtag(ctx, query, limit)
				} else {
					evts, err = c.SearchContent(ctx, query, search.Options{Limit: limit})
				}
				if err != nil {
					return err
				}
				printEvents(evts)
				return nil
			})
		},
	}
	searchCmd.Flags().Int("limit", 20, "Maximum results")
	searchCmd.Flags().Bool("profiles", false, "Search profiles instead of notes")

	dmCmd := &cobra.Command{
		Use:   "dm <pubkey|npub> <message>",
		Short: "Send an encrypted direct message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := normalizePubkey(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				evt, err := c.SendDirectMessage(ctx, pk, args[1])
				if err != nil {
					return err
				}
				fmt.Printf("sent %s\n", evt.ID)
				return nil
			})
		},
	}

	relaysCmd := &cobra.Command{
		Use:   "relays",
		Short: "Show relay connection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			add, _ := cmd.Flags().GetString("add")
			remove, _ := cmd.Flags().GetString("remove")
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if add != "" {
					if err := c.AddRelay(add); err != nil {
						return err
					}
				}
				if remove != "" {
					if err := c.RemoveRelay(remove); err != nil {
						return err
					}
				}
				for _, st := range c.RelayStatus() {
					state := "disconnected"
					if st.Connected {
						state = "connected"
					}
					fmt.Printf("%-40s %s\n", st.URL, state)
				}
				return nil
			})
		},
	}
	relaysCmd.Flags().String("add", "", "Add a relay before printing status")
	relaysCmd.Flags().String("remove", "", "Remove a relay before printing status")

	rootCmd.AddCommand(keygenCmd, whoamiCmd, publishCmd, feedCmd, profileCmd,
		followCmd, unfollowCmd, followingCmd, searchCmd, dmCmd, relaysCmd)
}

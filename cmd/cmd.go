// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand writes a config file from the template and prepares the history database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml from the template, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// authCommand runs the Spotify OAuth flow.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Authenticate with Spotify using OAuth2 and save the tokens to the config file",
		Action: r.Auth,
	}
}

// playlistsCommand lists the playlists discovery would register.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List your public Spotify playlists",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Playlists,
	}
}

// addCommand appends one playlist to the registry.
func addCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Register a playlist URL for syncing",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Folder name (defaults to the playlist name on Spotify)",
			},
		},
		Action: r.Add,
	}
}

// registryCommand prints the registry in sync order.
func registryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "registry",
		Aliases: []string{"ls"},
		Usage:   "List registered playlists in sync order",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Only show folders containing this substring",
			},
		},
		Action: r.Registry,
	}
}

// syncCommand runs a sync session.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Download missing tracks for every registered playlist",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Report what would be downloaded without contacting YouTube",
			},
			&cli.IntFlag{
				Name:  "max-downloads",
				Usage: "Stop after this many downloads across the session (0 for no limit)",
			},
			&cli.StringFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Only sync folders containing this substring",
			},
			&cli.StringFlag{
				Name:  "cookies",
				Usage: "Netscape cookies file passed to yt-dlp",
			},
			&cli.StringFlag{
				Name:  "cookies-from-browser",
				Usage: "Browser to read YouTube cookies from (e.g. firefox)",
			},
			&cli.BoolFlag{
				Name:  "download-only",
				Usage: "Skip playlist discovery and sync the registry as is",
			},
			&cli.BoolFlag{
				Name:  "discover-only",
				Usage: "Register new playlists and exit without downloading",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the session report as JSON",
			},
		},
		Action: r.Sync,
	}
}

// failuresCommand prints the failure logs of registered playlists.
func failuresCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "failures",
		Usage: "Show tracks that failed during the last sync of each playlist",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Only show folders containing this substring",
			},
		},
		Action: r.Failures,
	}
}

// historyCommand browses recorded sync runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent sync runs, or the track outcomes of one run",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to show",
				Value: 10,
			},
			&cli.StringFlag{
				Name:  "run",
				Usage: "Run ID or sequence number to show outcomes for",
			},
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Only show outcomes of this kind (success, exists, failed, age_restricted, throttled)",
			},
			&cli.StringFlag{
				Name:  "csv",
				Usage: "Export the run's outcomes to this CSV file",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

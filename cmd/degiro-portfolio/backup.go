package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type backupCmd struct {
	list bool
}

func (*backupCmd) Name() string     { return "backup" }
func (*backupCmd) Synopsis() string { return "upload a database snapshot to the backup bucket" }
func (*backupCmd) Usage() string {
	return `degiro-portfolio backup [-list]

  Snapshots the database, uploads it gzipped and rotates old backups.
  Requires BACKUP_S3_BUCKET and credentials.
`
}

func (c *backupCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.list, "list", false, "List existing backups instead of creating one.")
}

func (c *backupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	service := a.container.BackupService
	if service == nil {
		fmt.Fprintln(os.Stderr, "Backups are not configured (set BACKUP_S3_BUCKET)")
		return subcommands.ExitFailure
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout*5)
	defer cancel()

	if c.list {
		backups, err := service.ListBackups(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Listing backups failed: %v\n", err)
			return subcommands.ExitFailure
		}
		for _, b := range backups {
			fmt.Printf("%s\t%d bytes\t%dh old\n", b.Key, b.SizeBytes, b.AgeHours)
		}
		return subcommands.ExitSuccess
	}

	result, err := service.CreateAndUploadBackup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backup failed: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Uploaded %s (%d bytes), removed %d old backups\n", result.Key, result.SizeBytes, result.Removed)
	return subcommands.ExitSuccess
}

package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/wwwzy/SalesAgent/internal/storage"
)

func main() {
	path := flag.String("db", "salesagent.db", "SQLite 数据库路径")
	flag.Parse()

	db, err := gorm.Open(sqlite.Open(*path), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	fmt.Println("--- Verifying SalesAgent Database ---")

	if !db.Migrator().HasTable(&storage.SessionSnapshot{}) {
		fmt.Println("Table 'session_snapshots' does not exist yet.")
	} else {
		var n int64
		db.Model(&storage.SessionSnapshot{}).Count(&n)
		fmt.Printf("Total Session Snapshots: %d\n", n)

		if n > 0 {
			var snaps []storage.SessionSnapshot
			db.Order("saved_at desc").Limit(5).Find(&snaps)
			fmt.Println("Latest 5 Sessions (Local Time):")
			for _, s := range snaps {
				fmt.Printf("  [%s] %s user=%s agent=%s messages=%d\n",
					s.SavedAt.Local().Format("2006-01-02 15:04:05"), s.SessionID, s.UserID, s.CurrentAgent, s.MessageCount)
			}
		}
	}

	fmt.Println("\n------------------------------------")

	if !db.Migrator().HasTable(&storage.Lead{}) {
		fmt.Println("Table 'leads' does not exist yet.")
	} else {
		var n int64
		db.Model(&storage.Lead{}).Count(&n)
		fmt.Printf("Total Leads: %d\n", n)

		if n > 0 {
			var leads []storage.Lead
			db.Order("created_at desc").Limit(5).Find(&leads)
			fmt.Println("Latest 5 Leads (Local Time):")
			for _, l := range leads {
				fmt.Printf("  [%s] %s <%s> %s %s\n",
					l.CreatedAt.Local().Format("2006-01-02 15:04:05"), l.Name, l.Email, l.Phone, l.Company)
			}
		}
	}

	fmt.Println("\n------------------------------------")

	if db.Migrator().HasTable(&storage.AuditRecord{}) {
		var total, failed int64
		db.Model(&storage.AuditRecord{}).Count(&total)
		db.Model(&storage.AuditRecord{}).Where("status = ?", "failed").Count(&failed)
		fmt.Printf("Total Audit Records: %d (failed: %d)\n", total, failed)
	} else {
		fmt.Println("Table 'audit_records' does not exist yet.")
	}
}

// log-seeder appends synthetic FortiGate-style traffic log lines to a file,
// for exercising the collector without a firewall on hand.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	outPath  = flag.String("out", "fortigate.log", "log file to append to")
	count    = flag.Int("count", 100, "number of lines to generate")
	interval = flag.Duration("interval", 50*time.Millisecond, "interval between lines (0 for a burst)")
	blockPct = flag.Int("block-pct", 30, "percentage of denied lines")
)

var services = []string{"HTTPS", "HTTP", "DNS", "SSH", "SMTP", "NTP", "SNMP"}

var osNames = []string{
	"Windows 11", "Windows 10", "Android", "iOS", "Mac OS X",
	"Ubuntu Linux", "Debian", "FortiOS",
}

var policies = []struct {
	id   string
	name string
}{
	{"1", "lan-to-wan"},
	{"2", "guest-internet"},
	{"7", "servers-outbound"},
	{"12", "block-p2p"},
}

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	f, err := os.OpenFile(*outPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("open %s: %v", *outPath, err)
	}
	defer f.Close()

	log.Printf("seeding %d lines into %s", *count, *outPath)

	for i := 0; i < *count; i++ {
		if _, err := fmt.Fprintln(f, generateLine()); err != nil {
			log.Fatalf("write: %v", err)
		}
		if *interval > 0 {
			time.Sleep(*interval)
		}
	}
}

func generateLine() string {
	now := time.Now()
	action := "accept"
	if rand.Intn(100) < *blockPct {
		action = "deny"
	}
	policy := policies[rand.Intn(len(policies))]

	srcIP := fmt.Sprintf("192.168.%d.%d", rand.Intn(4), 2+rand.Intn(250))
	line := fmt.Sprintf(
		`date=%s time=%s srcip=%s srcmac=%s srcname=%q osname=%q devtype=%q dstip=%s service=%s action=%s policyid=%s policyname=%q sentbyte=%d rcvdbyte=%d`,
		now.Format("2006-01-02"), now.Format("15:04:05"),
		srcIP,
		gofakeit.MacAddress(),
		gofakeit.AppName(),
		osNames[rand.Intn(len(osNames))],
		gofakeit.RandomString([]string{"Computer", "Phone", "Tablet", "Router"}),
		gofakeit.IPv4Address(),
		services[rand.Intn(len(services))],
		action,
		policy.id, policy.name,
		rand.Intn(1<<20), rand.Intn(1<<22),
	)

	// A slice of lines miss identity fields, like real exports do.
	switch rand.Intn(10) {
	case 0:
		line = fmt.Sprintf(`date=%s time=%s srcip=%s dstip=%s action=%s`,
			now.Format("2006-01-02"), now.Format("15:04:05"),
			srcIP, gofakeit.IPv4Address(), action)
	case 1:
		line = `logver=702071577 devname="fw01" type=event subtype=system msg="daily summary"`
	}
	return line
}

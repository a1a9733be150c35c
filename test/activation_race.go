package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EternisAI/silo-license/internal/api/http/dto"
	"github.com/EternisAI/silo-license/internal/client"
	"github.com/google/uuid"
)

var (
	server      = flag.String("server", "http://localhost:8080", "License server URL")
	adminKey    = flag.String("admin-key", "", "Admin API key, used to create a license when -key is empty")
	licenseKey  = flag.String("key", "", "License key to hammer")
	devices     = flag.Int("devices", 50, "Number of distinct devices activating concurrently")
	maxDevices  = flag.Int("max-activations", 3, "Device limit for a license created by this tool")
	perDevice   = flag.Int("repeat", 1, "Activation attempts per device")
	overallTime = flag.Duration("timeout", 60*time.Second, "Overall timeout")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *overallTime)
	defer cancel()

	c := client.New(*server, client.WithAdminKey(*adminKey))

	key := *licenseKey
	if key == "" {
		lic, err := c.CreateLicense(ctx, dto.CreateLicenseRequest{
			CustomerEmail:  "race@example.com",
			CustomerName:   "Activation Race",
			PlanType:       "load-test",
			MaxActivations: *maxDevices,
		})
		if err != nil {
			log.Fatalf("Failed to create license: %v", err)
		}
		key = lic.LicenseKey
		log.Printf("Created license %s with max_activations=%d", key, lic.MaxActivations)
	}

	var (
		activated, already, limited, other, failed atomic.Int64
		wg                                         sync.WaitGroup
		start                                      = make(chan struct{})
	)

	runID := uuid.NewString()[:8]
	for i := 0; i < *devices; i++ {
		deviceID := fmt.Sprintf("race-%s-%03d", runID, i)
		for j := 0; j < *perDevice; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				resp, err := c.Activate(ctx, dto.ActivateRequest{LicenseKey: key, DeviceID: deviceID})
				switch {
				case err != nil:
					failed.Add(1)
				case resp.Valid && resp.AlreadyActivated:
					already.Add(1)
				case resp.Valid:
					activated.Add(1)
				case resp.Reason == "limit_reached":
					limited.Add(1)
				default:
					other.Add(1)
				}
			}()
		}
	}

	began := time.Now()
	close(start)
	wg.Wait()

	log.Printf("Finished %d attempts in %s", (*devices)*(*perDevice), time.Since(began))
	log.Printf("  activated:         %d", activated.Load())
	log.Printf("  already activated: %d", already.Load())
	log.Printf("  limit reached:     %d", limited.Load())
	log.Printf("  other rejections:  %d", other.Load())
	log.Printf("  transport errors:  %d", failed.Load())

	if *licenseKey == "" && activated.Load() > int64(*maxDevices) {
		log.Fatalf("Activation limit violated: %d devices activated, limit %d", activated.Load(), *maxDevices)
	}
}

// Package relay implements the stateless HTTP relay between the wizard and
// the Evolution API, plus the client the wizard uses to reach it.
//
// # Endpoints
//
//	POST /api/instance/create              {instanceName, phoneNumber}
//	GET  /api/instance/{instanceName}/qrcode
//	GET  /api/instance/{instanceName}/status
//	GET  /healthz
//	GET  /metrics
//
// Every instance endpoint answers with an envelope:
//
//	{"success": true,  "data": <remote body>}
//	{"success": false, "message": "...", "error": <remote body>}
//
// The Evolution API base URL and global API key live only in the relay and
// are sent upstream in the apikey header. When either is missing the relay
// still starts and answers 500 "Evolution API configuration not found".
//
// A remote non-2xx answer keeps its status code. Transport failures are
// logged with their cause and reported to the caller as a generic 500.
//
// # Usage
//
//	srv, err := relay.New(&relay.Config{
//	    Port:           relay.DefaultPort,
//	    EvolutionURL:   os.Getenv("EVOLUTION_API_URL"),
//	    EvolutionToken: os.Getenv("EVOLUTION_API_TOKEN"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
package relay

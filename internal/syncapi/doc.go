// Package syncapi is the wire contract of the sync_changes endpoint shared by
// the client engine and the reference server.
//
// The service is exposed over gRPC as motium.sync.v1.SyncService. Messages are
// plain Go structs encoded with a JSON codec registered under the "json"
// content-subtype, so no generated code is involved:
//
//	conn, _ := grpc.NewClient(addr,
//	    grpc.WithTransportCredentials(insecure.NewCredentials()),
//	    grpc.WithDefaultCallOptions(grpc.CallContentSubtype(syncapi.CodecName)))
//	cl := syncapi.NewSyncServiceClient(conn)
//
// Business payloads travel as JSON documents and are decoded into the closed
// set of Payload implementations (Trip, Vehicle, User, License) exactly once,
// at the boundary, by DecodePayload.
package syncapi

// Package harness runs end-to-end scenarios against an in-process daemon.
//
// A scenario drives the protocol dispatcher and the WAL relay with a fake
// authority and a fake oracle, checks each response, evaluates assertions
// on the final store, and compares the full transcript against a golden
// file.
//
// # Scenario Format
//
//	name: delete_with_lost_ack
//	description: "A DELETE whose first acknowledgement is lost"
//	wal:
//	  - id: e1
//	    op: DELETE
//	    path: /a/b.txt
//	oracle:
//	  "files for Alpha": '{"action":"list","filters":{"project":"Alpha"}}'
//	steps:
//	  - send: TAG /a/b.txt project Alpha
//	    expect: "OK: Tag added"
//	  - fail_commits: 1
//	  - relay: true
//	    expect_prefix: "fetched=1"
//	assertions:
//	  - type: file_absent
//	    path: /a/b.txt
//	  - type: event_count
//	    path: /a/b.txt
//	    op: DELETE
//	    count: 1
//
// # Assertion Types
//
//   - file_exists / file_absent: the path has (or has no) file record
//   - tag_present: the file carries key=value
//   - event_count: number of audit events for path, optionally of one op
//   - wal_committed: the authority saw a commit for the entry id
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory database with the clock stopped
// at testutil.DefaultNow, so relative dates and event timestamps are
// reproducible and transcripts can be compared byte for byte.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/tagging.yaml")
//	require.NoError(t, err)
//	harness.RunWithGolden(t, scenario)
package harness

// Package manifest declares publications and subscriptions in a YAML or
// TOML document instead of code.
//
// A manifest names Go types by their reflect string and lists the event
// fields and methods that take part in brokering:
//
//	types:
//	  - type: "*app.Clock"
//	    publications:
//	      - topic: topic://clock/tick
//	        event: Tick
//	        restriction: synchronous-only
//	  - type: "*app.View"
//	    subscriptions:
//	      - topic: topic://clock/tick
//	        method: OnTick
//	        handler: background
//	        matchers:
//	          - name: subscribe-global
//	          - script: args.Hour >= 8
//	            timeout: 50ms
//	          - field: Zone
//	            equals: UTC
//
// Event fields must be exported broker.Event values; methods must have
// the signature func(sender any, args A) error. The Inspector turns the
// manifest into broker declarations and can be swapped at runtime, e.g.
// by Watch. Swapping affects later registrations only.
package manifest

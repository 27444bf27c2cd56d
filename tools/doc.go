// Package tools defines the Tool interface exposed to an external assistant process, including registration, parameter schemas, and side-effect classification. Tools let the assistant interact with local and third-party systems in a structured, extensible way.
package tools

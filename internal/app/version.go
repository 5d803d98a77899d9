package app

// Version is set at build time with -ldflags "-X pricebot/internal/app.Version=...".
var Version = "dev"

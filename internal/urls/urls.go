package urls

// Documentation URLs surfaced in troubleshooting hints.

// EvolutionInstall covers running the Evolution API and its environment,
// including the global API key.
const EvolutionInstall = "https://doc.evolution-api.com/v2/en/get-started/introduction"

// EvolutionInstanceAPI documents the instance endpoints the relay forwards to.
const EvolutionInstanceAPI = "https://doc.evolution-api.com/v2/api-reference/instance-controller/create-instance-basic"

// LinkedDevices is WhatsApp's help article on linking a device by QR code
// or phone number.
const LinkedDevices = "https://faq.whatsapp.com/1317564962315842"

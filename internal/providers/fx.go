package providers

import (
	"github.com/smallbiznis/fieldbooks/internal/providers/email"
	"github.com/smallbiznis/fieldbooks/internal/providers/pdf"
	"github.com/smallbiznis/fieldbooks/internal/providers/sms"
	"github.com/smallbiznis/fieldbooks/internal/providers/storage"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	sms.Module,
	pdf.Module,
	storage.Module,
)

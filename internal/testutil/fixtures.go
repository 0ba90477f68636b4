package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteCSV writes a CSV file named table+".csv" into dir from header and rows.
func WriteCSV(t testing.TB, dir, table string, header string, rows ...string) string {
	t.Helper()
	path := filepath.Join(dir, table+".csv")
	content := header + "\n" + strings.Join(rows, "\n")
	if len(rows) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// WriteSampleExtract writes a small but complete raw extract: two seasons of
// games, their schedule, plays, drives, the per-play detail tables and the
// REDZONE and FGXP tables whose canonical names differ only in case.
// Every PASS and RUSH pid resolves to a play.
func WriteSampleExtract(t testing.TB, dir string) {
	t.Helper()

	WriteCSV(t, dir, "GAME",
		"gid,seas,wk,day,v,h,stad,temp,humd,wspd,wdir,cond,surf,ou,sprv,ptsv,ptsh",
		"1,2000,1,SUN,NYJ,NE,Foxboro,70,50,5,N,Sunny,Grass,40.5,3,20,21",
		"2,2000,1,SUN,PHI,DAL,Texas Stadium,85,,0,,Dome,Turf,38,-2,41,14",
		"3,2001,1,MON,DEN,NYG,Giants Stadium,65,40,10,SW,Cloudy,Grass,41,4,31,20",
	)
	WriteCSV(t, dir, "SCHEDULE",
		"gid,seas,wk,date,v,h",
		"1,2000,1,2000-09-03,NYJ,NE",
		"2,2000,1,2000-09-03,PHI,DAL",
		"3,2001,1,2001-09-10,DEN,NYG",
	)

	pbpHeader := "gid,pid,detail,off,def,type,dseq,len,qtr,min,sec,ptso,ptsd,timo,timd,dwn,ytg,yfog,zone,yds,succ,fd,sg,nh,pts,bc,kne,dir,psr,comp,spk,loc,trg,dfb,eps,epa"
	WriteCSV(t, dir, "PBP", pbpHeader,
		"1,1,T.Brady pass to T.Brown,NE,NYJ,PASS,1,6,1,15,0,0,0,3,3,1,10,25,2,8,1,0,0,0,0,,,,TB-0001,C,0,SL,TB-0002,0,0.5,0.8",
		"1,2,A.Smith run left,NE,NYJ,RUSH,2,5,1,14,30,0,0,3,3,2,2,33,2,3,1,1,0,0,0,AS-0001,0,LE,,,,,,,1.3,0.4",
		"1,3,Punt,NE,NYJ,PUNT,3,8,2,10,0,0,0,3,3,4,5,40,2,45,0,0,0,0,0,,,,,,,,,,1.1,-0.2",
		"2,4,T.Aikman pass incomplete,DAL,PHI,PASS,1,5,1,15,0,0,0,3,3,1,10,20,1,0,0,0,0,0,0,,,,TA-0001,I,0,DM,MI-0001,0,0.3,-0.4",
		"2,5,E.Smith run up middle,DAL,PHI,RUSH,2,4,3,8,15,7,14,2,3,2,10,20,1,4,0,0,0,0,0,ES-0001,0,MD,,,,,,,0.1,-0.1",
		"3,6,K.Warner pass to M.Faulk,DEN,NYG,PASS,1,7,4,2,0,14,10,1,2,3,4,60,4,12,1,1,0,0,0,,,,KW-0001,C,0,DR,MF-0001,0,2.2,1.1",
	)
	WriteCSV(t, dir, "DRIVE",
		"uid,gid,fpid,tname,drvn,obt,qtr,min,sec,yfog,plays,succ,rfd,pfd,ofd,ry,ra,py,pa,pc,peyf,peya,net,res",
		"1,1,1,NE,1,KO,1,15,0,25,3,2,1,0,0,3,1,8,1,1,0,0,56,PUNT",
		"2,2,4,DAL,1,KO,1,15,0,20,2,0,0,0,0,4,1,0,1,0,0,0,4,PUNT",
		"3,3,6,DEN,1,PUNT,4,2,0,60,1,1,0,1,0,0,0,12,1,1,0,0,12,TD",
	)
	WriteCSV(t, dir, "PASS",
		"pid,psr,trg,loc,yds,comp,succ,spk,dfb",
		"1,TB-0001,TB-0002,SL,8,1,1,0,",
		"4,TA-0001,MI-0001,DM,0,0,0,0,",
		"6,KW-0001,MF-0001,DR,12,1,1,0,",
	)
	WriteCSV(t, dir, "RUSH",
		"pid,bc,dir,yds,succ,kne",
		"2,AS-0001,LE,3,1,0",
		"5,ES-0001,MD,4,0,0",
	)
	WriteCSV(t, dir, "PLAYER",
		"player,fname,lname,pos1,height,weight,start",
		"TB-0001,Tom,Brady,QB,76,225,2000",
		"TA-0001,Troy,Aikman,QB,76,219,1989",
	)
	WriteCSV(t, dir, "OFFENSE",
		"uid,gid,player,pa,pc,py,ra,sra,ry,seas",
		"1,1,TB-0001,1,1,8,0,0,0,2000",
		"2,2,TA-0001,1,0,0,0,0,0,2000",
	)
	WriteCSV(t, dir, "PENALTY",
		"uid,pid,ptm,pen,desc,cat,pey,act",
		"1,3,NYJ,NYJ-01,Offside,1,5,A",
	)
	WriteCSV(t, dir, "REDZONE",
		"uid,gid,pid,player,ra,ry,pa,pc,py",
		"1,3,6,KW-0001,0,0,1,1,12",
		"2,1,2,AS-0001,1,3,0,0,0",
	)
	WriteCSV(t, dir, "FGXP",
		"pid,fgxp,fkicker,dist,good",
		"3,XP,JV-0001,20,1",
	)
}
